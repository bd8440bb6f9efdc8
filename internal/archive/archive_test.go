package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestBuildKeepsEntryOrderAndContent(t *testing.T) {
	entries := []Entry{
		{Name: "a.jpg", Data: []byte("alpha")},
		{Name: "b.jpg", Data: []byte("bravo")},
	}

	data, err := Build(entries, nil)
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(zr.File))
	}
	if zr.File[0].Name != "a.jpg" || zr.File[1].Name != "b.jpg" {
		t.Fatalf("expected entry order preserved, got %s, %s", zr.File[0].Name, zr.File[1].Name)
	}

	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(content) != "bravo" {
		t.Fatalf("expected bravo, got %s", content)
	}
}

func TestBuildReportsProgressPerEntry(t *testing.T) {
	entries := []Entry{
		{Name: "1.png", Data: []byte("x")},
		{Name: "2.png", Data: []byte("y")},
		{Name: "3.png", Data: []byte("z")},
	}

	var calls [][2]int
	_, err := Build(entries, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}

	want := [][2]int{{1, 3}, {2, 3}, {3, 3}}
	if len(calls) != len(want) {
		t.Fatalf("expected %d progress calls, got %d", len(want), len(calls))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("call %d: expected %v, got %v", i, want[i], calls[i])
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	entries := []Entry{{Name: "same.png", Data: bytes.Repeat([]byte("pixel"), 100)}}

	first, err := Build(entries, nil)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	second, err := Build(entries, nil)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical archive bytes across builds")
	}
}

func TestBuildKeepsDuplicateNames(t *testing.T) {
	entries := []Entry{
		{Name: "dup.jpg", Data: []byte("first")},
		{Name: "dup.jpg", Data: []byte("second")},
	}

	data, err := Build(entries, nil)
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected both duplicate entries written, got %d", len(zr.File))
	}
}
