// Package file reads an encoded elementary stream from disk or stdin.
package file

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"framepump/source"
)

type Config struct {
	Path string `koanf:"path"` // "-" reads stdin
}

type driver struct {
	source.Reader
	closer io.Closer
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("file-source: expected Config, got %T", raw)
	}
	if c.Path == "" {
		return fmt.Errorf("file-source: path is required")
	}
	var r io.Reader = os.Stdin
	if c.Path != "-" {
		f, err := os.Open(c.Path)
		if err != nil {
			return fmt.Errorf("file-source: %w", err)
		}
		d.closer, r = f, f
	}
	d.Reader = source.NewReader(bufio.NewReader(r))
	return nil
}

func (d *driver) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

func init() { source.Register("file", func() source.Adapter { return &driver{} }) }
