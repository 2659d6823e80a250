// Package fs provides the reference-counted inode and open-file objects a
// process table entry points at. Counts are only changed under the kernel
// lock, so the objects carry no lock of their own.
package fs

import "fmt"

// Open flags.
const (
	ORdOnly = 0x0
	OWrOnly = 0x1
	ORdWr   = 0x2
)

// Inode is an in-core file system node.
type Inode struct {
	Num   int
	Path  string
	count int
}

// NewInode returns an inode holding one reference.
func NewInode(num int, path string) *Inode {
	return &Inode{Num: num, Path: path, count: 1}
}

// Dup adds a reference and returns the inode.
func (ip *Inode) Dup() *Inode {
	ip.count++
	return ip
}

// Put drops a reference and reports whether it was the last one.
func (ip *Inode) Put() bool {
	if ip.count <= 0 {
		panic(fmt.Sprintf("fs: inode %d reference count underflow", ip.Num))
	}
	ip.count--
	return ip.count == 0
}

// Count returns the number of references.
func (ip *Inode) Count() int { return ip.count }

// File is an entry of the system open-file table. Duplicated descriptors
// share the position and flags.
type File struct {
	Inode *Inode
	Flags int
	Pos   int64
	count int
}

// Open creates a file table entry on ip holding one reference. The file
// keeps its own reference to the inode.
func Open(ip *Inode, flags int) *File {
	return &File{Inode: ip.Dup(), Flags: flags, count: 1}
}

// Dup adds a reference and returns the file.
func (f *File) Dup() *File {
	f.count++
	return f
}

// Close drops a reference; the last one releases the inode.
func (f *File) Close() {
	if f.count <= 0 {
		panic("fs: file reference count underflow")
	}
	f.count--
	if f.count == 0 {
		f.Inode.Put()
	}
}

// Count returns the number of references.
func (f *File) Count() int { return f.count }
