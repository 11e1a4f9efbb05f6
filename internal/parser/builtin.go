package parser

import (
	"fmt"
	"time"
)

// Options configures built-in parsers.
type Options struct {
	// Location is the zone transaction times are stored in.
	Location *time.Location
}

var builtins = map[string]func(Options) Parser{
	CitiMailName: func(o Options) Parser { return NewCitiMail(o) },
	CitiSMSName:  func(o Options) Parser { return NewCitiSMS(o) },
	HDFCSMSName:  func(o Options) Parser { return NewHDFCSMS(o) },
}

// Builtin constructs the named built-in parsers, or all of them when names is empty.
func Builtin(opts Options, names ...string) ([]Parser, error) {
	if len(names) == 0 {
		names = BuiltinNames()
	}

	parsers := make([]Parser, 0, len(names))
	for _, name := range names {
		ctor, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown parser %q", name)
		}
		parsers = append(parsers, ctor(opts))
	}
	return parsers, nil
}

// BuiltinNames lists built-in parser names in a stable order.
func BuiltinNames() []string {
	return []string{CitiMailName, CitiSMSName, HDFCSMSName}
}
