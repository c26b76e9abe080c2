package source

import (
	"context"
	"fmt"
)

// Reader hands out encoded input. Read returns at most max bytes; an empty
// result or io.EOF means the source is exhausted.
type Reader interface {
	Read(ctx context.Context, max int) ([]byte, error)
}

// Adapter is a Reader the compiler can build and configure by name.
type Adapter interface {
	Reader
	Configure(any) error // driver-specific config struct
	Close() error
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown source %q", name)
}
