// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/go-zipstream/zipstream"
)

func newExtractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "extract a ZIP archive into a directory",
		ArgsUsage: "PATH DESTDIR",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:               "force",
				Usage:              "overwrite existing files",
				Aliases:            []string{"f"},
				DisableDefaultText: true,
			},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().Get(0)
			destDir := c.Args().Get(1)
			if path == "" || destDir == "" {
				return fmt.Errorf("%w: expected PATH and DESTDIR arguments", ErrFlagParse)
			}
			return (&extract{path: path, destDir: destDir, force: c.Bool("force")}).Run(c.Context)
		},
	}
}

type extract struct {
	path    string
	destDir string
	force   bool
}

func (x *extract) Run(ctx context.Context) error {
	f, err := os.Open(x.path)
	if err != nil {
		return fmt.Errorf("%w: opening archive: %w", ErrCLI, err)
	}
	defer f.Close()

	r, err := zipstream.NewReaderContext(ctx, f)
	if err != nil {
		return fmt.Errorf("%w: reading archive: %w", ErrCLI, err)
	}

	for e, err := range r.Entries(ctx) {
		if err != nil {
			return fmt.Errorf("%w: reading archive: %w", ErrCLI, err)
		}
		if err := x.extractEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (x *extract) extractEntry(ctx context.Context, e *zipstream.Entry) error {
	target, err := x.safeJoin(e.Name)
	if err != nil {
		return err
	}

	if e.IsDir() {
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("%w: creating directory %q: %w", ErrCLI, target, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: creating directory for %q: %w", ErrCLI, target, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !x.force {
		flags |= os.O_EXCL
	}
	out, err := os.OpenFile(target, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating %q: %w", ErrCLI, target, err)
	}
	defer out.Close()

	body, err := e.Open(ctx)
	if err != nil {
		return fmt.Errorf("%w: opening %q: %w", ErrCLI, e.Name, err)
	}
	defer body.Close()

	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("%w: extracting %q: %w", ErrCLI, e.Name, err)
	}
	return nil
}

// safeJoin joins name under x.destDir, rejecting any entry name that would
// escape the destination directory via ".." path segments.
func (x *extract) safeJoin(name string) (string, error) {
	cleaned := filepath.Clean("/" + name)
	target := filepath.Join(x.destDir, strings.TrimPrefix(cleaned, "/"))
	if !strings.HasPrefix(target, filepath.Clean(x.destDir)+string(os.PathSeparator)) && target != filepath.Clean(x.destDir) {
		return "", fmt.Errorf("%w: entry name %q escapes destination directory", ErrCLI, name)
	}
	return target, nil
}
