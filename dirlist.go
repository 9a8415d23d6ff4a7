package nffs

import "bytes"

// nameReader fetches the full on-flash filename for an inode entry whose
// cached prefix does not settle a comparison. Implemented by *Filesystem.
type nameReader interface {
	readInodeName(e *inodeEntry) ([]byte, error)
}

// compareEntryName compares an existing directory child against a
// candidate name, using only the 3-byte cached prefix (spec.md §4.4,
// supplemented from NFFS_SHORT_FILENAME_LEN) unless the prefixes tie and
// either name is longer than the cache, in which case it falls back to a
// flash read of the existing entry's full name.
func compareEntryName(nr nameReader, existing *inodeEntry, name []byte) (int, error) {
	if !existing.fullNameNeeded() && len(name) <= shortNameLen {
		// Both names fit entirely within the cached prefix; no flash
		// read needed.
		return bytes.Compare(existing.namePrefix[:existing.nameLen], name), nil
	}

	n := shortNameLen
	if len(name) < n {
		n = len(name)
	}
	if int(existing.nameLen) < n {
		n = int(existing.nameLen)
	}
	if c := bytes.Compare(existing.namePrefix[:n], name[:n]); c != 0 {
		return c, nil
	}

	full, err := nr.readInodeName(existing)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(full, name), nil
}

// dirInsert inserts child into parent's sorted-by-filename child list
// (spec.md §4.4). parent must be a directory.
func dirInsert(nr nameReader, parent, child *inodeEntry, name []byte) error {
	child.setName(name)
	child.parentID = parent.id()

	var prev *inodeEntry
	cur := parent.children
	for cur != nil {
		c, err := compareEntryName(nr, cur, name)
		if err != nil {
			return err
		}
		if c > 0 {
			break
		}
		prev = cur
		cur = cur.sibling
	}
	child.sibling = cur
	if prev == nil {
		parent.children = child
	} else {
		prev.sibling = child
	}
	return nil
}

// dirRemove delinks child from parent's child list.
func dirRemove(parent, child *inodeEntry) {
	var prev *inodeEntry
	cur := parent.children
	for cur != nil {
		if cur == child {
			if prev == nil {
				parent.children = cur.sibling
			} else {
				prev.sibling = cur.sibling
			}
			cur.sibling = nil
			return
		}
		prev = cur
		cur = cur.sibling
	}
}

// dirFind performs the linear, early-exiting lookup spec.md §4.6
// describes: the list is sorted, so a strictly-greater comparison means
// the name cannot appear later.
func dirFind(nr nameReader, parent *inodeEntry, name []byte) (*inodeEntry, error) {
	for cur := parent.children; cur != nil; cur = cur.sibling {
		c, err := compareEntryName(nr, cur, name)
		if err != nil {
			return nil, err
		}
		if c == 0 {
			return cur, nil
		}
		if c > 0 {
			break
		}
	}
	return nil, ErrNotExist
}

// dirChildren returns every child in sort order, used by readdir.
func dirChildren(parent *inodeEntry) []*inodeEntry {
	var out []*inodeEntry
	for cur := parent.children; cur != nil; cur = cur.sibling {
		out = append(out, cur)
	}
	return out
}
