package monitors

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/contacts"
)

// Definitions is the server's loaded configuration tree: named checks,
// check groups, contacts and the monitors binding them to hosts.
type Definitions struct {
	Checks   map[string]*checks.Check
	Groups   map[string]*checks.CheckGroup
	Contacts map[string]*contacts.Contact
	Monitors []*Monitor
}

type checkFile struct {
	Checks []struct {
		Name string `yaml:"name"`
		Path string `yaml:"path"`
		Args string `yaml:"args"`
	} `yaml:"checks"`
	Groups []struct {
		Name   string   `yaml:"name"`
		Checks []string `yaml:"checks"`
	} `yaml:"groups"`
}

type contactFile struct {
	Contacts []struct {
		Name  string `yaml:"name"`
		Email string `yaml:"email"`
		Phone string `yaml:"phone"`
	} `yaml:"contacts"`
}

type monitorFile struct {
	Monitors []struct {
		Monitor string   `yaml:"monitor"`
		Hosts   []string `yaml:"hosts"`
		Watch   []string `yaml:"watch"`
		Notify  []string `yaml:"notify"`
	} `yaml:"monitors"`
}

// Load walks the checks, contacts and monitors directories and resolves
// every cross-reference. Monitors referencing an unknown check or contact
// fail the load: a half-bound monitor silently never fires.
func Load(checksDir, contactsDir, monitorsDir string) (*Definitions, error) {
	defs := &Definitions{
		Checks:   make(map[string]*checks.Check),
		Groups:   make(map[string]*checks.CheckGroup),
		Contacts: make(map[string]*contacts.Contact),
	}

	if err := loadFiles(checksDir, func(data []byte) error { return defs.addChecks(data) }); err != nil {
		return nil, err
	}
	if err := loadFiles(contactsDir, func(data []byte) error { return defs.addContacts(data) }); err != nil {
		return nil, err
	}
	if err := loadFiles(monitorsDir, func(data []byte) error { return defs.addMonitors(data) }); err != nil {
		return nil, err
	}
	return defs, nil
}

func loadFiles(dir string, add func([]byte) error) error {
	if dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.yml"))
	if err != nil {
		return err
	}
	more, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	matches = append(matches, more...)
	sort.Strings(matches)

	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return &MonitorError{Reason: fmt.Sprintf("can't read %s: %v", m, err)}
		}
		if err := add(data); err != nil {
			return &MonitorError{Reason: fmt.Sprintf("%s: %v", m, err)}
		}
	}
	return nil
}

func (d *Definitions) addChecks(data []byte) error {
	var f checkFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for _, def := range f.Checks {
		c, err := checks.NewCheck(def.Name, def.Path, def.Args)
		if err != nil {
			return err
		}
		d.Checks[c.Name] = c
	}
	for _, def := range f.Groups {
		var members []*checks.Check
		for _, name := range def.Checks {
			c, ok := d.Checks[name]
			if !ok {
				return fmt.Errorf("group %q references unknown check %q", def.Name, name)
			}
			members = append(members, c)
		}
		g, err := checks.NewCheckGroup(def.Name, members)
		if err != nil {
			return err
		}
		d.Groups[g.Name] = g
	}
	return nil
}

func (d *Definitions) addContacts(data []byte) error {
	var f contactFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for _, def := range f.Contacts {
		c, err := contacts.NewContact(def.Name, def.Email, def.Phone)
		if err != nil {
			return err
		}
		d.Contacts[c.Name] = c
	}
	return nil
}

func (d *Definitions) addMonitors(data []byte) error {
	var f monitorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}
	for _, def := range f.Monitors {
		var watched []checks.Updatable
		for _, name := range def.Watch {
			if g, ok := d.Groups[name]; ok {
				watched = append(watched, g)
				continue
			}
			if c, ok := d.Checks[name]; ok {
				watched = append(watched, c)
				continue
			}
			return fmt.Errorf("monitor %q watches unknown check %q", def.Monitor, name)
		}

		var notified []*contacts.Contact
		for _, name := range def.Notify {
			c, ok := d.Contacts[name]
			if !ok {
				return fmt.Errorf("monitor %q notifies unknown contact %q", def.Monitor, name)
			}
			notified = append(notified, c)
		}

		m, err := NewMonitor(def.Monitor, def.Hosts, watched, notified)
		if err != nil {
			return err
		}
		d.Monitors = append(d.Monitors, m)
	}
	return nil
}

// MonitorsFor returns the monitors matching a client address.
func (d *Definitions) MonitorsFor(address string) []*Monitor {
	var matched []*Monitor
	for _, m := range d.Monitors {
		if m.Matches(address) {
			matched = append(matched, m)
		}
	}
	return matched
}
