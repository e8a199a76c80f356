package render_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/romanqed/tonequeue/render"
	"github.com/romanqed/tonequeue/shootout"
)

func TestNullEngineRendersAndReportsProgress(t *testing.T) {
	uploads := t.TempDir()
	if err := os.WriteFile(filepath.Join(uploads, "a.wav"), []byte("aaa"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(uploads, "b.wav"), []byte("bb"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := render.NewNullEngine(uploads)
	spec := &render.Spec{
		Shootout: &shootout.Shootout{
			DITracks: []shootout.DITrack{{Path: "a.wav"}, {Path: "b.wav"}},
		},
		OutputDir: t.TempDir(),
	}

	var reports []uint8
	path, err := engine.Render(t.Context(), spec, func(pct uint8, msg string) {
		reports = append(reports, pct)
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected output file at %s: %v", path, err)
	}
	if len(reports) != 2 || reports[len(reports)-1] != 100 {
		t.Fatalf("unexpected progress reports: %+v", reports)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "aaabb" {
		t.Fatalf("unexpected output contents: %q", data)
	}
}

func TestNullEngineRejectsEmptyShootout(t *testing.T) {
	engine := render.NewNullEngine(t.TempDir())
	spec := &render.Spec{Shootout: &shootout.Shootout{}, OutputDir: t.TempDir()}

	if _, err := engine.Render(t.Context(), spec, nil); err == nil {
		t.Fatal("expected error for shootout with no DI tracks")
	}
}

func TestNullEngineStopsOnCancellation(t *testing.T) {
	uploads := t.TempDir()
	if err := os.WriteFile(filepath.Join(uploads, "a.wav"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := render.NewNullEngine(uploads)
	spec := &render.Spec{
		Shootout:  &shootout.Shootout{DITracks: []shootout.DITrack{{Path: "a.wav"}}},
		OutputDir: t.TempDir(),
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := engine.Render(ctx, spec, nil); err == nil {
		t.Fatal("expected error for a canceled context")
	}
}
