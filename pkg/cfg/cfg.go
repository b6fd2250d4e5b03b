// Package cfg loads configuration from flag defaults, a YAML file and
// command-line flags, in that order of precedence.
package cfg

import (
	"flag"

	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
)

// Source is a generic configuration source. This function may do whatever is
// required to obtain the configuration. It is passed a pointer to the
// destination, which will be something compatible to `yaml.Unmarshal`. The
// obtained configuration may be written to this object, it may also contain
// data from previous sources.
type Source func(interface{}) error

// Unmarshal merges the values of the various configuration sources and sets
// them on `dst`.
func Unmarshal(dst interface{}, sources ...Source) error {
	if len(sources) == 0 {
		return errors.New("no configuration sources supplied")
	}
	for _, source := range sources {
		if err := source(dst); err != nil {
			return errors.Wrap(err, "sourcing")
		}
	}
	return nil
}

// Parse registers the flags of dst to fs and loads configuration from flag
// defaults, the YAML file named by the -config.file flag (if any) and
// finally the flags in args.
func Parse(dst flagext.Registerer, fs *flag.FlagSet, args []string) error {
	return Unmarshal(dst,
		Defaults(fs),
		ConfigFileLoader(args, "config.file"),
		Flags(fs, args),
	)
}
