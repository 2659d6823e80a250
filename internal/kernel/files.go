package kernel

import (
	"fmt"

	"github.com/me/pmcore/internal/fs"
	"github.com/me/pmcore/internal/proc"
	"github.com/me/pmcore/pkg/model"
)

// fileTable is the in-core inode cache, keyed by path.
type fileTable struct {
	root    *fs.Inode
	inodes  map[string]*fs.Inode
	nextNum int
}

func newFileTable() *fileTable {
	root := fs.NewInode(1, "/")
	return &fileTable{
		root:    root,
		inodes:  map[string]*fs.Inode{"/": root},
		nextNum: 2,
	}
}

// iget returns a referenced inode for path, reusing the cached one while it
// is still referenced.
func (t *fileTable) iget(path string) *fs.Inode {
	if ip, ok := t.inodes[path]; ok && ip.Count() > 0 {
		return ip.Dup()
	}
	ip := fs.NewInode(t.nextNum, path)
	t.nextNum++
	t.inodes[path] = ip
	return ip
}

// Open opens path in the lowest free descriptor of pid and returns it.
func (k *Kernel) Open(pid int, path string, flags int) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return -1, err
	}
	if p.State == model.ProcStateZombie {
		return -1, fmt.Errorf("open %s in pid %d: %w", path, pid, model.ESRCH)
	}
	if path == "" || path[0] != '/' {
		return -1, fmt.Errorf("open %q: path must be absolute: %w", path, model.EINVAL)
	}
	for fd := 0; fd < proc.OpenMax; fd++ {
		if p.OFiles[fd] != nil {
			continue
		}
		ip := k.files.iget(path)
		p.OFiles[fd] = fs.Open(ip, flags)
		ip.Put()
		return fd, nil
	}
	return -1, fmt.Errorf("open %s in pid %d: too many open files: %w", path, pid, model.EINVAL)
}

// CloseFile closes descriptor fd of pid.
func (k *Kernel) CloseFile(pid, fd int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	if fd < 0 || fd >= proc.OpenMax || p.OFiles[fd] == nil {
		return fmt.Errorf("close fd %d in pid %d: %w", fd, pid, model.EINVAL)
	}
	p.OFiles[fd].Close()
	p.OFiles[fd] = nil
	return nil
}

// MapRegion creates a region of the given size and attaches it to pid.
func (k *Kernel) MapRegion(pid, slot int, start uintptr, pages int, shared bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	if p.State == model.ProcStateZombie {
		return fmt.Errorf("map region in pid %d: %w", pid, model.ESRCH)
	}
	r, err := k.vm.AllocRegion(pages, shared)
	if err != nil {
		return fmt.Errorf("map region in pid %d: %w", pid, err)
	}
	if err := k.vm.AttachRegion(p, slot, start, r); err != nil {
		k.vm.FreeRegion(r)
		return fmt.Errorf("map region in pid %d: %w", pid, err)
	}
	k.logger.Debug("region mapped", "pid", pid, "slot", slot, "pages", pages, "shared", shared)
	return nil
}

// UnmapRegion detaches the region in slot from pid.
func (k *Kernel) UnmapRegion(pid, slot int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	p, err := k.lookup(pid)
	if err != nil {
		return err
	}
	if slot < 0 || slot >= proc.NRPRegions || p.PRegs[slot].Reg == nil {
		return fmt.Errorf("unmap region slot %d in pid %d: %w", slot, pid, model.EINVAL)
	}
	k.vm.DetachRegion(p, slot)
	return nil
}
