package cfb

// Dirent is a node in the in-memory logical directory forest: the
// parent/children view of the MSI, as opposed to the on-disk red-black
// sibling/child graph it was expanded from.
type Dirent struct {
	Name     string
	Type     uint8
	Children []*Dirent

	e *entry
}

// IsStream reports whether this node is a leaf stream object.
func (d *Dirent) IsStream() bool { return d.Type == typeStream }

// IsStorage reports whether this node is a storage (including the root).
func (d *Dirent) IsStorage() bool { return d.Type == typeStorage || d.Type == typeRoot }

// Size returns the entry's declared stream size (meaningless for storages).
func (d *Dirent) Size() uint64 { return d.e.size }

// CLSID returns the entry's 16-byte class id.
func (d *Dirent) CLSID() [16]byte { return d.e.clsid }

// buildTree expands the on-disk array of entries (indexed by stream ID,
// entries[0] being the root) into the in-memory parent/children forest,
// starting the depth-first walk at stream ID 0 as spec.md section 4.4
// describes. A visited set guards against cycles the on-disk sibling/child
// pointers might otherwise introduce (spec.md section 9 "Cycle safety").
func buildTree(entries []*entry) (*Dirent, error) {
	visited := make([]bool, len(entries))
	var root *Dirent
	var walk func(id uint32, parent *Dirent) error
	walk = func(id uint32, parent *Dirent) error {
		if id == noStream {
			return nil
		}
		if uint64(id) >= uint64(len(entries)) {
			return newErr(Corrupt, "directory entry id out of range", int64(id))
		}
		if visited[id] {
			return newErr(Corrupt, "cycle detected in directory tree", int64(id))
		}
		visited[id] = true
		e := entries[id]

		var node *Dirent
		if e.typ == typeRoot {
			if parent != nil {
				return newErr(Corrupt, "root entry found as a non-root node", int64(id))
			}
			node = &Dirent{Name: e.decodedName(), Type: e.typ, e: e}
			root = node
		} else {
			if parent == nil {
				return newErr(Corrupt, "non-root entry encountered before root", int64(id))
			}
			node = &Dirent{Name: e.decodedName(), Type: e.typ, e: e}
			parent.Children = append(parent.Children, node)
		}

		// siblings share the same parent as e
		if err := walk(e.leftSibID, parent); err != nil {
			return err
		}
		if err := walk(e.rightSibID, parent); err != nil {
			return err
		}
		// children recurse with node as their parent
		if e.typ != typeStream {
			if err := walk(e.childID, node); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0, nil); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, newErr(Corrupt, "no root entry found", 0)
	}
	return root, nil
}
