// Copyright (c) 2024 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package ast_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pboisselier/gosh/internal/ast"
)

func TestNodeKindsAreDistinctTypes(t *testing.T) {
	nodes := []ast.Node{
		ast.Empty{},
		ast.Simple{Args: []string{"echo", "hi"}},
		ast.Sequence{Op: ast.SeqAnd, Left: ast.Empty{}, Right: ast.Empty{}},
		ast.Background{Child: ast.Empty{}},
		ast.Pipe{Left: ast.Empty{}, Right: ast.Empty{}},
		ast.Redirect{Kind: ast.RedirectOut, Filename: "f", Child: ast.Empty{}},
	}
	seen := map[string]bool{}
	for _, n := range nodes {
		require.NotNil(t, n)
		typeName := fmt.Sprintf("%T", n)
		require.False(t, seen[typeName], "duplicate node type %s", typeName)
		seen[typeName] = true
	}
}

func TestSimpleArgsRoundTrip(t *testing.T) {
	n := ast.Simple{Args: []string{"cat", "-n", "f"}}
	require.Equal(t, "cat", n.Args[0])
	require.Len(t, n.Args, 3)
}

func TestRedirectVariants(t *testing.T) {
	kinds := []ast.RedirectKind{
		ast.RedirectIn, ast.RedirectOut, ast.RedirectAppend, ast.RedirectErr, ast.RedirectErrOut,
	}
	seen := map[ast.RedirectKind]bool{}
	for _, k := range kinds {
		require.False(t, seen[k], "duplicate redirect kind value")
		seen[k] = true
	}
}

func TestExpressionTreeComposes(t *testing.T) {
	// (echo a; echo b >> f) piped into (cat -n), backgrounded.
	tree := ast.Background{
		Child: ast.Pipe{
			Left: ast.Sequence{
				Op:   ast.SeqAlways,
				Left: ast.Simple{Args: []string{"echo", "a"}},
				Right: ast.Redirect{
					Kind:     ast.RedirectAppend,
					Filename: "f",
					Child:    ast.Simple{Args: []string{"echo", "b"}},
				},
			},
			Right: ast.Simple{Args: []string{"cat", "-n"}},
		},
	}

	bg, ok := tree.(ast.Background)
	require.True(t, ok)
	pipe, ok := bg.Child.(ast.Pipe)
	require.True(t, ok)
	seq, ok := pipe.Left.(ast.Sequence)
	require.True(t, ok)
	require.Equal(t, ast.SeqAlways, seq.Op)
}
