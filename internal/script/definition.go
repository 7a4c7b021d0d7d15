// Package script loads YAML test definitions and runs them against a
// ptyexpect Session, one step at a time.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KennethanCeyer/ptyexpect"
)

// Definition is one scripted conversation with a program.
type Definition struct {
	// Shell is the command line to run. The plugin directory given to the
	// runner is appended as its last argument.
	Shell   CommandLine       `yaml:"shell"`
	Env     map[string]string `yaml:"env"`
	Dir     string            `yaml:"dir"`
	Logfile string            `yaml:"logfile"`
	// Timeout applies to expect steps without their own.
	Timeout time.Duration `yaml:"timeout"`
	Steps   []Step        `yaml:"steps"`
}

// CommandLine is written either as a string, split on white space, or as a
// sequence of arguments taken verbatim.
type CommandLine []string

func (c *CommandLine) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*c = strings.Fields(node.Value)
		return nil
	case yaml.SequenceNode:
		var args []string
		if err := node.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	}
	return fmt.Errorf("line %d: shell must be a string or a list of arguments", node.Line)
}

// Step is a single action. Exactly one of the action fields is set.
type Step struct {
	Send        *string       `yaml:"send"`
	SendLine    *string       `yaml:"sendline"`
	SendControl string        `yaml:"sendcontrol"`
	SendEOF     bool          `yaml:"sendeof"`
	Expect      []PatternSpec `yaml:"expect"`

	// Want is the index of the pattern that must match; any index passes
	// when it is unset.
	Want    *int          `yaml:"want"`
	Timeout time.Duration `yaml:"timeout"`
	Message string        `yaml:"message"`
}

// Action names the step's action.
func (s Step) Action() string {
	var actions []string
	if s.Send != nil {
		actions = append(actions, "send")
	}
	if s.SendLine != nil {
		actions = append(actions, "sendline")
	}
	if s.SendControl != "" {
		actions = append(actions, "sendcontrol")
	}
	if s.SendEOF {
		actions = append(actions, "sendeof")
	}
	if s.Expect != nil {
		actions = append(actions, "expect")
	}
	return strings.Join(actions, "+")
}

func (s Step) validate() error {
	switch action := s.Action(); action {
	case "":
		return errors.New("no action")
	case "send", "sendline", "sendeof":
	case "sendcontrol":
		if len(s.SendControl) != 1 {
			return fmt.Errorf("sendcontrol takes a single character, got %q", s.SendControl)
		}
	case "expect":
		if len(s.Expect) == 0 {
			return errors.New("expect needs at least one pattern")
		}
		if s.Want != nil && (*s.Want < 0 || *s.Want >= len(s.Expect)) {
			return fmt.Errorf("want %d is not the index of one of %d patterns", *s.Want, len(s.Expect))
		}
		for i, p := range s.Expect {
			if _, err := p.Pattern(); err != nil {
				return fmt.Errorf("pattern %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("more than one action: %s", action)
	}
	if s.Action() != "expect" && (s.Want != nil || s.Timeout != 0) {
		return errors.New("want and timeout only apply to expect")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", s.Timeout)
	}
	return nil
}

// Validate reports the first problem found in d.
func (d *Definition) Validate() error {
	if len(d.Shell) == 0 {
		return errors.New("shell is required")
	}
	if d.Timeout < 0 {
		return fmt.Errorf("negative timeout %v", d.Timeout)
	}
	if len(d.Steps) == 0 {
		return errors.New("no steps")
	}
	for i, s := range d.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// Parse decodes and validates a definition. Unknown keys are rejected.
func Parse(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Definition
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty definition")
		}
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads the definition stored at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// SessionConfig builds the Session configuration for d on top of base.
// Variables from Env are added to the current environment in key order.
func (d *Definition) SessionConfig(pluginDir string, base ptyexpect.Config) ptyexpect.Config {
	cfg := base
	cfg.Command = d.Shell[0]
	cfg.Args = append([]string(nil), d.Shell[1:]...)
	if pluginDir != "" {
		cfg.Args = append(cfg.Args, pluginDir)
	}
	if d.Dir != "" {
		cfg.Dir = d.Dir
	}
	if d.Timeout > 0 {
		cfg.Timeout = d.Timeout
	}
	if len(d.Env) > 0 {
		keys := make([]string, 0, len(d.Env))
		for k := range d.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		env := os.Environ()
		for _, k := range keys {
			env = append(env, k+"="+d.Env[k])
		}
		cfg.Env = env
	}
	return cfg
}
