//go:build linux

package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// cgroup is a per-step cgroup v2 directory. fd is an O_PATH descriptor
// handed to clone3 through SysProcAttr.CgroupFD.
type cgroup struct {
	dir string
	fd  int
}

func newCgroup(limits CgroupLimits, name string) (*cgroup, error) {
	dir := filepath.Join(limits.Parent, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cgroup: %w", err)
	}
	cg := &cgroup{dir: dir, fd: -1}

	var settings [][2]string
	if limits.MemoryMax > 0 {
		settings = append(settings, [2]string{"memory.max", strconv.FormatInt(limits.MemoryMax, 10)})
	}
	if limits.PidsMax > 0 {
		settings = append(settings, [2]string{"pids.max", strconv.FormatInt(limits.PidsMax, 10)})
	}
	if limits.CPUMax != "" {
		settings = append(settings, [2]string{"cpu.max", limits.CPUMax})
	}
	for _, s := range settings {
		if err := os.WriteFile(filepath.Join(dir, s[0]), []byte(s[1]), 0o644); err != nil {
			cg.destroy()
			return nil, fmt.Errorf("set %s: %w", s[0], err)
		}
	}

	fd, err := unix.Open(dir, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		cg.destroy()
		return nil, fmt.Errorf("open cgroup: %w", err)
	}
	cg.fd = fd
	return cg, nil
}

// destroy kills anything left in the cgroup and removes it. rmdir fails
// with EBUSY until the killed tasks are reaped, so it is retried briefly.
func (c *cgroup) destroy() error {
	if c.fd >= 0 {
		unix.Close(c.fd)
		c.fd = -1
	}
	_ = os.WriteFile(filepath.Join(c.dir, "cgroup.kill"), []byte("1"), 0o644)

	var err error
	for range 20 {
		err = unix.Rmdir(c.dir)
		if err == nil || errors.Is(err, unix.ENOENT) {
			return nil
		}
		if !errors.Is(err, unix.EBUSY) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("remove cgroup: %w", err)
}
