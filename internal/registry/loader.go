package registry

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Loader reads the registry file. JSON is valid YAML, so a servers.json
// list loads unchanged.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

// Load reads and parses the file, then replaces ${VAR} references in the
// decoded names, commands and passwords with the environment value. The
// expansion happens after parsing so a value is never read as YAML.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read service file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse service file: %w", err)
	}

	for i := range file {
		file[i].expand()
	}
	return file, nil
}

func (e *ProfileEntry) expand() {
	e.Name = expandEnv(e.Name)
	for action, cmd := range e.Command {
		e.Command[action] = expandEnv(cmd)
	}
	if e.Info != nil {
		e.Info.Password = expandEnv(e.Info.Password)
	}
}

// Only the braced form is recognised; a bare $VAR in a command belongs to
// the remote shell.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} with the value of VAR; unset variables become
// empty strings.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRef.FindStringSubmatch(m)[1])
	})
}
