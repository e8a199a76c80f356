package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// NullEngine is the reference Engine used by cmd/tonequeue-server when
// no external rendering backend is configured. It "renders" a shootout
// by concatenating its DI tracks into one output file, reporting
// progress per track; it exists so the service is runnable end to end
// without a real audio engine, not to produce a usable mix. Production
// deployments are expected to inject a real render.Engine instead.
type NullEngine struct {
	// UploadsRoot is the directory DITrack.Path is relative to.
	UploadsRoot string
}

// NewNullEngine builds a NullEngine rooted at uploadsRoot.
func NewNullEngine(uploadsRoot string) *NullEngine {
	return &NullEngine{UploadsRoot: uploadsRoot}
}

func (e *NullEngine) Render(ctx context.Context, spec *Spec, progress ProgressFunc) (string, error) {
	if len(spec.Shootout.DITracks) == 0 {
		return "", fmt.Errorf("%w: shootout has no DI tracks", ErrPermanent)
	}

	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create output dir: %s", ErrTransient, err)
	}
	out, err := os.CreateTemp(spec.OutputDir, ".tmp-*.bin")
	if err != nil {
		return "", fmt.Errorf("%w: create output file: %s", ErrTransient, err)
	}
	tmpPath := out.Name()
	defer os.Remove(tmpPath)

	total := len(spec.Shootout.DITracks)
	for i, track := range spec.Shootout.DITracks {
		select {
		case <-ctx.Done():
			out.Close()
			return "", ctx.Err()
		default:
		}

		in, err := os.Open(filepath.Join(e.UploadsRoot, track.Path))
		if err != nil {
			out.Close()
			return "", fmt.Errorf("%w: open DI track %s: %s", ErrPermanent, track.Path, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			return "", fmt.Errorf("%w: copy DI track %s: %s", ErrTransient, track.Path, err)
		}

		pct := uint8((i + 1) * 100 / total)
		if progress != nil {
			progress(pct, fmt.Sprintf("mixed track %d/%d", i+1, total))
		}
		// A real engine spends real wall-clock time per stage; this
		// stand-in yields briefly so lease-extension and cancellation
		// have something to race against in practice, not just in tests.
		time.Sleep(10 * time.Millisecond)
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%w: close output file: %s", ErrTransient, err)
	}
	dest := filepath.Join(spec.OutputDir, fmt.Sprintf("mix-%d.bin", time.Now().UnixNano()))
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("%w: rename into place: %s", ErrTransient, err)
	}
	return dest, nil
}
