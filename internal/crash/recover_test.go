/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"visory/internal/domain"
	"visory/internal/storage"
)

// silenceStderr swaps os.Stderr for a pipe for the duration of the test.
func silenceStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, r)
		close(done)
	}()
	t.Cleanup(func() {
		_ = w.Close()
		<-done
		os.Stderr = old
	})
}

func stubExit(t *testing.T) *int {
	t.Helper()
	var mu sync.Mutex
	code := 0
	old := exitFn
	exitFn = func(c int) {
		mu.Lock()
		code = c
		mu.Unlock()
	}
	t.Cleanup(func() { exitFn = old })
	return &code
}

func findReport(t *testing.T, dir string) []byte {
	t.Helper()
	files, _ := os.ReadDir(dir)
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log") {
			b, err := os.ReadFile(filepath.Join(dir, f.Name()))
			if err != nil {
				t.Fatalf("read report: %v", err)
			}
			return b
		}
	}
	t.Fatalf("no crash report under %s", dir)
	return nil
}

func TestRecoverWritesReportAndAutosaves(t *testing.T) {
	silenceStderr(t)
	code := stubExit(t)

	root := t.TempDir()
	ph, err := storage.InitProject(root, domain.Project{Name: "Crashy", Pages: []domain.ComicPage{domain.NewPage(1, "p")}})
	if err != nil {
		t.Fatalf("InitProject: %v", err)
	}

	func() {
		defer Recover(ph)
		panic("boom")
	}()

	bdir := filepath.Join(root, storage.BackupsDirName)
	b := findReport(t, bdir)
	if !bytes.Contains(b, []byte("Panic: boom")) || !bytes.Contains(b, []byte("visory crash report")) {
		t.Fatalf("report content wrong: %s", b)
	}
	if !bytes.Contains(b, []byte("Pages: 1")) {
		t.Fatalf("report misses project info: %s", b)
	}
	files, _ := os.ReadDir(bdir)
	autosaved := false
	for _, f := range files {
		if strings.Contains(f.Name(), ".crash-") {
			autosaved = true
		}
	}
	if !autosaved {
		t.Fatalf("expected crash autosave under backups")
	}
	if *code != 2 {
		t.Fatalf("expected exit code 2, got %d", *code)
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	code := stubExit(t)
	func() {
		defer Recover(nil)
	}()
	if *code != 0 {
		t.Fatalf("exit called without panic")
	}
}

func TestGoRecoversGoroutinePanic(t *testing.T) {
	silenceStderr(t)
	done := make(chan int, 1)
	old := exitFn
	exitFn = func(c int) { done <- c }
	t.Cleanup(func() { exitFn = old })

	root := t.TempDir()
	Go(&storage.ProjectHandle{Root: root, ManifestPath: filepath.Join(root, storage.ManifestFileName)}, func() {
		panic("worker died")
	})
	if c := <-done; c != 2 {
		t.Fatalf("exit code = %d", c)
	}
	b := findReport(t, filepath.Join(root, storage.BackupsDirName))
	if !bytes.Contains(b, []byte("worker died")) {
		t.Fatalf("report lacks panic value: %s", b)
	}
}

func TestReportDirWithoutProject(t *testing.T) {
	if got := reportDir(nil); !strings.HasSuffix(got, "visory-crash") {
		t.Fatalf("reportDir(nil) = %s", got)
	}
}
