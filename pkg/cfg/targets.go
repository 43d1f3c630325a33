package cfg

import "github.com/l3aro/go-flowsplit/pkg/tree"

// targets is a stack of frames, one per enclosing loop, switch or try. Each
// frame collects the nodes that jump to the construct's exit.
type targets struct {
	frames [][]Node
}

func (t *targets) push() {
	t.frames = append(t.frames, nil)
}

func (t *targets) pop() []Node {
	top := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]
	return top
}

// add records n on the depth-th frame counting from the innermost (1).
func (t *targets) add(n Node, depth int, pos tree.Pos, what string) {
	i := len(t.frames) - depth
	tree.Assert(depth >= 1 && i >= 0, pos, "%s %d with %d enclosing constructs", what, depth, len(t.frames))
	t.frames[i] = append(t.frames[i], n)
}

// register records n on the innermost frame, if any.
func (t *targets) register(n Node) {
	if !n.Valid() || len(t.frames) == 0 {
		return
	}
	top := len(t.frames) - 1
	t.frames[top] = append(t.frames[top], n)
}
