package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

const defaultConfigName = ".taskdash.yml"

var errConfigMissing = errors.New("task file missing")

var isTerminalFn = isTerminal

// runInit writes the starter task file. An existing file is never touched.
func runInit(path string) error {
	if path == "" {
		path = defaultConfigName
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("task file already exists at %s", path)
		}
		return err
	}
	if _, err := io.WriteString(f, starterTaskFile(dirTitle(path))); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// dirTitle names a run after the working directory, or after the task file
// when the directory has no usable name.
func dirTitle(path string) string {
	if cwd, err := os.Getwd(); err == nil {
		if base := filepath.Base(cwd); base != "" && base != "." && base != string(filepath.Separator) {
			return base
		}
	}
	if base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)); base != "" && base != "." {
		return base
	}
	return "taskdash"
}

func starterTaskFile(title string) string {
	if strings.TrimSpace(title) == "" {
		title = "taskdash"
	}

	return fmt.Sprintf(`title: %q
parallel: 3

tasks:
  - id: app:lint
    cmd: bin/lint
    cache: true

  - id: app:build
    cmd:
      - bin/build
      - bin/package
    cache: true
    outputs: [dist]

  - id: app:serve
    cmd: bin/serve
    continuous: true
    depends_on: app:build

  - id: app:e2e
    cmd: bin/e2e
    forward_args: true
    depends_on:
      - app:lint
      - task: app:build
`, title)
}

// offerInit runs when the default task file is missing. On a terminal it
// asks before writing the starter file; otherwise it only points at init.
func offerInit(path string, in *os.File, out io.Writer) error {
	if !isTerminalFn(in) {
		fmt.Fprintf(out, "No %s found in this directory. Run `taskdash init` to create one.\n", path)
		return errConfigMissing
	}

	ok, err := confirm(in, out, fmt.Sprintf("No %s found. Create one now?", path))
	if err != nil {
		return err
	}
	if !ok {
		return errConfigMissing
	}
	if err := runInit(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created %s. Edit it, then re-run taskdash.\n", path)
	return nil
}

func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func isTerminal(file *os.File) bool {
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
