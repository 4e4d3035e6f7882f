package luasrc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/gopher-lua/parse"
)

// ErrRejected is returned by Guard when an edit turns a file that the
// reference Lua grammar accepts into one it rejects.
var ErrRejected = errors.New("edited source rejected by lua grammar check")

// Validate compiles src with gopher-lua's parser without running it.
func Validate(src, chunkName string) error {
	src = strings.TrimPrefix(src, "\ufeff")
	if _, err := parse.Parse(strings.NewReader(src), chunkName); err != nil {
		return err
	}
	return nil
}

// Guard checks that edited still parses whenever original did. Files the
// reference parser cannot read to begin with (dialect quirks it does not
// support) are not held against the edit.
func Guard(original, edited, chunkName string) error {
	if Validate(original, chunkName) != nil {
		return nil
	}
	if err := Validate(edited, chunkName); err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}
