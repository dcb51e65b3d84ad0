package quantum

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// Stat gives the size of a rendered bundle.
type Stat struct {
	Bundle string
	Size   int
	Gzip   int
}

func bundleStats(bundles []Output, zl zerolog.Logger) ([]Stat, error) {
	var (
		buf   bytes.Buffer
		stats = make([]Stat, 0, len(bundles))
	)

	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}

	for _, b := range bundles {
		buf.Reset()
		gz.Reset(&buf)

		if _, err := gz.Write(b.Code); err != nil {
			return nil, fmt.Errorf("error compressing %s: %w", b.Name, err)
		} else if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("error compressing %s: %w", b.Name, err)
		}

		s := Stat{Bundle: b.Name, Size: len(b.Code), Gzip: buf.Len()}
		stats = append(stats, s)

		zl.Info().Str("bundle", b.Name).Str("file", b.File).Int("size", s.Size).Int("gzip", s.Gzip).Bool("split", b.Split).Msg("bundle")
	}

	return stats, nil
}
