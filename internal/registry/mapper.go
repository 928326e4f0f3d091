package registry

import (
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

// Map validates the file and converts it to domain profiles, preserving
// file order. Any invalid entry fails the whole load so a typo is caught at
// startup instead of on the first request.
func Map(file File) ([]*domain.ServiceProfile, error) {
	if len(file) == 0 {
		return nil, fmt.Errorf("no services defined")
	}

	seen := make(map[string]struct{}, len(file))
	profiles := make([]*domain.ServiceProfile, 0, len(file))

	for i, entry := range file {
		p, err := mapEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("service #%d: %w", i+1, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("service #%d: duplicate id %q", i+1, p.ID)
		}
		seen[p.ID] = struct{}{}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func mapEntry(e ProfileEntry) (*domain.ServiceProfile, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}
	if strings.ContainsAny(id, "/ \t\n") {
		return nil, fmt.Errorf("id %q must not contain slashes or whitespace", id)
	}

	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = id
	}

	p := &domain.ServiceProfile{
		ID:      id,
		Name:    name,
		Managed: e.Managed || e.GSM,
	}

	if len(e.Command) > 0 {
		p.Commands = make(map[domain.Action]string, len(e.Command))
		for raw, cmd := range e.Command {
			action, err := domain.ParseAction(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", id, err)
			}
			if strings.TrimSpace(cmd) == "" {
				return nil, fmt.Errorf("%s: empty command for %q", id, action)
			}
			p.Commands[action] = cmd
		}
	}

	if !p.Managed {
		for _, required := range []domain.Action{domain.ActionStart, domain.ActionStop} {
			if _, ok := p.Commands[required]; !ok {
				return nil, fmt.Errorf("%s: unmanaged service must define a %q command", id, required)
			}
		}
	}

	if e.Info != nil {
		if e.Info.Port <= 0 || e.Info.Port > 65535 {
			return nil, fmt.Errorf("%s: info.port must be in 1..65535, got %d", id, e.Info.Port)
		}
		p.Info = &domain.ConnectionInfo{Port: e.Info.Port, Password: e.Info.Password}
	}

	return p, nil
}
