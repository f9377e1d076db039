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
	"os"

	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/go-zipstream/zipstream"
)

func newListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Usage:     "list the entries of a ZIP archive",
		ArgsUsage: "PATH",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("%w: missing PATH argument", ErrFlagParse)
			}
			return (&list{path: path}).Run(c.Context)
		},
	}
}

type list struct {
	path string
}

func (l *list) Run(ctx context.Context) error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("%w: opening archive: %w", ErrCLI, err)
	}
	defer f.Close()

	r, err := zipstream.NewReaderContext(ctx, f)
	if err != nil {
		return fmt.Errorf("%w: reading archive: %w", ErrCLI, err)
	}

	tbl := table.New("type", "method", "modified", "size", "compressed", "ratio", "name")
	for e, err := range r.Entries(ctx) {
		if err != nil {
			return fmt.Errorf("%w: reading archive: %w", ErrCLI, err)
		}

		ratio := "-"
		if e.OriginalSize > 0 {
			ratio = fmt.Sprintf("%.1f%%", (1-float64(e.CompressedSize)/float64(e.OriginalSize))*100)
		}
		tbl.AddRow(
			e.Kind.String(),
			methodName(e.Method),
			e.ModTime.Format("2006-01-02 15:04:05"),
			e.OriginalSize,
			e.CompressedSize,
			ratio,
			e.Name,
		)

		if err := e.Autodrain(ctx); err != nil {
			return fmt.Errorf("%w: skipping %q: %w", ErrCLI, e.Name, err)
		}
	}
	tbl.Print()
	return nil
}

func methodName(method uint16) string {
	switch method {
	case 0:
		return "stored"
	case 8:
		return "deflate"
	default:
		return fmt.Sprintf("0x%04x", method)
	}
}
