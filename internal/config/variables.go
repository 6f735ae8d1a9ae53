package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

var templateVar = regexp.MustCompile(`\$\{([^}]+)\}`)

var knownTemplateVars = map[string]bool{
	"host":     true,
	"port":     true,
	"pid":      true,
	"logDir":   true,
	"tmpDir":   true,
	"userHome": true,
}

// TemplateVars are the values substituted into the adapter argument template.
// Supported forms: ${host} ${port} ${pid} ${logDir} ${tmpDir} ${userHome} ${env:NAME}.
type TemplateVars struct {
	Host   string
	Port   int
	PID    int // host process id
	LogDir string
	TmpDir string

	// Env is consulted before the process environment for ${env:NAME}
	Env map[string]string
}

// ExpandArgs expands every argument of an adapter command line template.
// Problems with individual arguments are reported together.
func ExpandArgs(args []string, vars TemplateVars) ([]string, error) {
	var errs error
	out := make([]string, len(args))
	for i, arg := range args {
		expanded, err := vars.Expand(arg)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("argument %d %q: %w", i, arg, err))
		}
		out[i] = expanded
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// Expand substitutes the variables in text. Variables that cannot be expanded
// stay in place and the first failure is returned.
func (v TemplateVars) Expand(text string) (string, error) {
	var firstErr error
	out := templateVar.ReplaceAllStringFunc(text, func(match string) string {
		value, err := v.lookup(match[2 : len(match)-1])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return value
	})
	return out, firstErr
}

func (v TemplateVars) lookup(name string) (string, error) {
	if envName, ok := strings.CutPrefix(name, "env:"); ok {
		if value, found := v.Env[envName]; found {
			return value, nil
		}
		return os.Getenv(envName), nil
	}

	switch name {
	case "host":
		return v.Host, nil
	case "port":
		if v.Port == 0 {
			return "", fmt.Errorf("${port} used before a port was allocated")
		}
		return strconv.Itoa(v.Port), nil
	case "pid":
		return strconv.Itoa(v.PID), nil
	case "logDir":
		return v.LogDir, nil
	case "tmpDir":
		return v.TmpDir, nil
	case "userHome":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home: %w", err)
		}
		return home, nil
	default:
		return "", fmt.Errorf("unknown variable ${%s}", name)
	}
}

// checkTemplate reports variables in args that an adapter launch never provides
func checkTemplate(args []string) error {
	var errs error
	for _, arg := range args {
		for _, m := range templateVar.FindAllStringSubmatch(arg, -1) {
			if knownTemplateVars[m[1]] || strings.HasPrefix(m[1], "env:") {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("unknown variable ${%s} in adapter argument %q", m[1], arg))
		}
	}
	return errs
}
