package cfg

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// YAML returns a Source that opens the supplied `.yaml` file and loads it.
// Unknown fields are rejected.
func YAML(f string) Source {
	return func(dst interface{}) error {
		y, err := os.ReadFile(f)
		if err != nil {
			return errors.Wrap(err, "Error reading config file")
		}
		return dYAML(y)(dst)
	}
}

// dYAML returns a YAML source and allows dependency injection.
func dYAML(y []byte) Source {
	return func(dst interface{}) error {
		return errors.Wrap(yaml.UnmarshalStrict(y, dst), "Error parsing config file")
	}
}

// ConfigFileLoader returns a Source which loads the YAML file named by the
// flag name in args. The source does nothing if the flag is absent.
func ConfigFileLoader(args []string, name string) Source {
	return func(dst interface{}) error {
		file, ok := lookupFlag(args, name)
		if !ok || file == "" {
			return nil
		}
		return YAML(file)(dst)
	}
}
