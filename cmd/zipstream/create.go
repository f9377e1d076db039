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
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/urfave/cli/v2"

	"github.com/go-zipstream/zipstream"
)

func newCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "create a ZIP archive from a list of files",
		ArgsUsage: "OUT FILE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:               "force",
				Usage:              "overwrite an existing archive",
				Aliases:            []string{"f"},
				DisableDefaultText: true,
			},
			&cli.IntFlag{
				Name:  "level",
				Usage: "DEFLATE compression level (0-9)",
				Value: 6,
			},
		},
		Action: func(c *cli.Context) error {
			out := c.Args().First()
			files := c.Args().Tail()
			if out == "" || len(files) == 0 {
				return fmt.Errorf("%w: expected OUT and at least one FILE argument", ErrFlagParse)
			}
			return (&create{out: out, files: files, force: c.Bool("force"), level: c.Int("level")}).Run(c.Context)
		},
	}
}

type create struct {
	out   string
	files []string
	force bool
	level int
}

func (cr *create) Run(ctx context.Context) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !cr.force {
		flags |= os.O_EXCL
	}
	dst, err := os.OpenFile(cr.out, flags, 0o644)
	if err != nil {
		return fmt.Errorf("%w: creating archive: %w", ErrCLI, err)
	}
	defer dst.Close()

	w := zipstream.NewWriter(dst)
	for _, path := range cr.files {
		if err := cr.addFile(ctx, w, path); err != nil {
			return err
		}
	}
	if err := w.Close(ctx); err != nil {
		return fmt.Errorf("%w: finalizing archive: %w", ErrCLI, err)
	}
	return nil
}

func (cr *create) addFile(ctx context.Context, w *zipstream.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: stat %q: %w", ErrCLI, path, err)
	}

	name := filepath.Base(path)
	if info.IsDir() {
		return w.WriteEntry(ctx, zipstream.WriteEntry{
			Kind:    zipstream.EntryDirectory,
			Name:    name + "/",
			ModTime: info.ModTime(),
		})
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %q: %w", ErrCLI, path, err)
	}
	crc := crc32.ChecksumIEEE(raw)

	var compressed bytes.Buffer
	fw, err := flate.NewWriter(&compressed, cr.level)
	if err != nil {
		return fmt.Errorf("%w: compressing %q: %w", ErrCLI, path, err)
	}
	if _, err := fw.Write(raw); err != nil {
		return fmt.Errorf("%w: compressing %q: %w", ErrCLI, path, err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("%w: compressing %q: %w", ErrCLI, path, err)
	}

	body := zipstream.Deflated(bytes.NewReader(compressed.Bytes()), uint64(len(raw)), uint64(compressed.Len()), crc)
	return w.WriteEntry(ctx, zipstream.WriteEntry{
		Kind:    zipstream.EntryFile,
		Name:    name,
		ModTime: info.ModTime(),
		Body:    body,
	})
}
