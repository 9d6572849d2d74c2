package pidstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadClear(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "run", "app.pid"))

	if _, ok, err := s.Read(); ok || err != nil {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}
	if err := s.Write(4242); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, ok, err := s.Read()
	if err != nil || !ok || pid != 4242 {
		t.Fatalf("read got pid=%d ok=%v err=%v", pid, ok, err)
	}

	// overwrite on next launch
	if err := s.Write(17); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if pid, _, _ := s.Read(); pid != 17 {
		t.Fatalf("expected 17 after overwrite, got %d", pid)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Fatalf("pidfile should be gone, stat err=%v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}

func TestReadGarbage(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty":    "",
		"text":     "not-a-pid\n",
		"zero":     "0\n",
		"negative": "-5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name+".pid")
			if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if pid, ok, err := New(p).Read(); ok || err != nil {
				t.Fatalf("expected no pid, got pid=%d ok=%v err=%v", pid, ok, err)
			}
		})
	}
}

func TestReadFirstLineOnly(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.pid")
	if err := os.WriteFile(p, []byte(" 123 \n{\"meta\":1}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, ok, err := New(p).Read()
	if err != nil || !ok || pid != 123 {
		t.Fatalf("got pid=%d ok=%v err=%v", pid, ok, err)
	}
}

func TestWriteRejectsInvalidPid(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "x.pid"))
	if err := s.Write(0); err == nil {
		t.Fatal("expected error for pid 0")
	}
}

func TestEmptyPathIsInert(t *testing.T) {
	s := New("")
	if err := s.Write(10); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Read(); ok {
		t.Fatal("empty path must never report a pid")
	}
	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
}
