package profile

import (
	_ "embed"

	"github.com/seastrand/vigil/internal/fault"
)

//go:embed default.cue
var defaultCUE []byte

// Default returns the embedded default profile. The embedded source
// goes through the same compile-and-validate path as a file on disk, so
// a broken default fails loudly at first use rather than producing a
// kernel with silent zero parameters.
func Default() (fault.Profile, error) {
	return Compile(defaultCUE, "default.cue")
}

// MustDefault is Default for init paths and tests where the embedded
// profile is known good.
func MustDefault() fault.Profile {
	p, err := Default()
	if err != nil {
		panic(err)
	}
	return p
}
