package checks

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/shlex"
)

// RunOptions carries the client-side execution environment of a check.
type RunOptions struct {
	// ChecksDir is joined to relative check paths.
	ChecksDir string
	// User and Group name the expected owner of the check program.
	User  string
	Group string
	// EnforceOwnership verifies the program is owned by User/Group before
	// spawning it.
	EnforceOwnership bool
}

// Run executes the check program locally and applies the outcome to the
// check itself. Any CheckError along the way (ownership, spawn, output
// parsing) degrades to status=ERROR with the error text in the details;
// Run never fails the caller. The child's exit code is ignored: truth is
// carried by the JSON status field on its stdout.
func (c *Check) Run(opts RunOptions) *Check {
	reply, err := c.execute(opts)
	if err != nil {
		c.CurrentStatus = StatusError
		c.Details = err.Error()
		return c
	}
	// The reply was built against our own id, so only a disabled check
	// can reject it here.
	c.UpdateStatus(reply) //nolint:errcheck
	return c
}

func (c *Check) execute(opts RunOptions) (Reply, error) {
	absolutePath := c.absolutePath(opts.ChecksDir)

	if opts.EnforceOwnership {
		owned, err := ownedBy(absolutePath, opts.User, opts.Group)
		if err != nil {
			return Reply{}, err
		}
		if !owned {
			return Reply{}, &CheckError{Reason: fmt.Sprintf(
				"%q is not owned by user %s / group %s", absolutePath, opts.User, opts.Group)}
		}
	}

	args, err := shlex.Split(c.Args)
	if err != nil {
		return Reply{}, &CheckError{Reason: fmt.Sprintf("can't tokenize check arguments %q: %v", c.Args, err)}
	}

	output, err := exec.Command(absolutePath, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Reply{}, &CheckError{Reason: fmt.Sprintf("couldn't run check %q: %v", absolutePath, err)}
		}
		// Non-zero exit still carries output worth parsing.
	}

	return c.deserializeOutput(output)
}

func (c *Check) absolutePath(checksDir string) string {
	if filepath.IsAbs(c.Path) {
		return c.Path
	}
	return filepath.Join(checksDir, c.Path)
}

// deserializeOutput parses the child's stdout: a single JSON document with
// a STATUS name and optional DETAILS and DATA, keys matched
// case-insensitively.
func (c *Check) deserializeOutput(output []byte) (Reply, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(output, &doc); err != nil {
		return Reply{}, &CheckError{Reason: fmt.Sprintf("couldn't parse JSON from check output: %v", err)}
	}

	lowered := make(map[string]json.RawMessage, len(doc))
	for k, v := range doc {
		switch key := strings.ToLower(k); key {
		case "status", "details", "data":
			lowered[key] = v
		}
	}

	raw, ok := lowered["status"]
	if !ok {
		return Reply{}, &CheckError{Reason: "missing 'status' from check output"}
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return Reply{}, &CheckError{Reason: "invalid 'status' from check output"}
	}
	status, err := ParseStatus(name)
	if err != nil {
		return Reply{}, err
	}

	reply := Reply{ID: &c.ID, Status: &status}
	if raw, ok := lowered["details"]; ok {
		json.Unmarshal(raw, &reply.Details) //nolint:errcheck
	}
	if raw, ok := lowered["data"]; ok {
		json.Unmarshal(raw, &reply.Data) //nolint:errcheck
	}
	return reply, nil
}

func ownedBy(path, userName, groupName string) (bool, error) {
	byUser, err := ownedByUser(path, userName)
	if err != nil {
		return false, err
	}
	byGroup, err := ownedByGroup(path, groupName)
	if err != nil {
		return false, err
	}
	return byUser && byGroup, nil
}

func ownedByUser(path, userName string) (bool, error) {
	u, err := user.Lookup(userName)
	if err != nil {
		return false, &CheckError{Reason: fmt.Sprintf("user %q doesn't exist", userName)}
	}
	uid, _, err := statOwner(path)
	if err != nil {
		return false, err
	}
	wantUID, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return false, &CheckError{Reason: fmt.Sprintf("user %q has a non-numeric uid %q", userName, u.Uid)}
	}
	return uid == uint32(wantUID), nil
}

func ownedByGroup(path, groupName string) (bool, error) {
	g, err := user.LookupGroup(groupName)
	if err != nil {
		return false, &CheckError{Reason: fmt.Sprintf("group %q doesn't exist", groupName)}
	}
	_, gid, err := statOwner(path)
	if err != nil {
		return false, err
	}
	wantGID, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return false, &CheckError{Reason: fmt.Sprintf("group %q has a non-numeric gid %q", groupName, g.Gid)}
	}
	return gid == uint32(wantGID), nil
}

func statOwner(path string) (uid, gid uint32, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, &CheckError{Reason: fmt.Sprintf("can't stat %q: %v", path, err)}
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, &CheckError{Reason: fmt.Sprintf("no ownership information for %q", path)}
	}
	return st.Uid, st.Gid, nil
}
