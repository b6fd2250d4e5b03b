package cfg

import (
	"flag"
	"strings"

	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
)

// Defaults registers the flags of dst to fs, which sets every field of dst
// to its flag default.
func Defaults(fs *flag.FlagSet) Source {
	return func(dst interface{}) error {
		r, ok := dst.(flagext.Registerer)
		if !ok {
			return errors.New("dst does not satisfy flagext.Registerer")
		}

		r.RegisterFlags(fs)
		return fs.Parse([]string{})
	}
}

// Flags parses args with fs. Only flags which are present in args are set,
// so values loaded by earlier sources are retained for all other flags.
func Flags(fs *flag.FlagSet, args []string) Source {
	return func(interface{}) error {
		return fs.Parse(args)
	}
}

// lookupFlag returns the value of the flag with the given name in args. It
// accepts the forms -name=value, --name=value, -name value and --name value.
func lookupFlag(args []string, name string) (string, bool) {
	for i, arg := range args {
		if arg == "--" {
			return "", false
		}

		trimmed := strings.TrimPrefix(strings.TrimPrefix(arg, "-"), "-")
		if trimmed == arg {
			continue
		}

		key, value, hasValue := strings.Cut(trimmed, "=")
		if key != name {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
		return "", false
	}
	return "", false
}
