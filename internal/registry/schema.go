package registry

// ProfileEntry is one service as written in the registry file.
//
//	- id: svc1
//	  name: Valheim
//	  managed: true
//	  info: { port: 2456, password: "${VALHEIM_PASSWORD}" }
//	- id: mc
//	  name: Minecraft
//	  command:
//	    start: systemctl --user start minecraft
//	    stop: systemctl --user stop minecraft
//	  info: { port: 25565 }
type ProfileEntry struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Managed bool              `yaml:"managed"`
	GSM     bool              `yaml:"gsm"` // legacy spelling of managed
	Command map[string]string `yaml:"command"`
	Info    *InfoEntry        `yaml:"info"`
}

// InfoEntry is the client-facing connection metadata.
type InfoEntry struct {
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}

// File is the root of the registry file: an ordered list of profiles.
type File []ProfileEntry
