package counters

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCommander scripts iptables behavior: which rules exist, how many
// duplicates of each, and what a listing returns.
type fakeCommander struct {
	calls    []string
	existing map[string]int // rule match -> number of installed copies
	listing  string
	failZero bool
	failList bool
}

func newFake() *fakeCommander {
	return &fakeCommander{existing: make(map[string]int)}
}

func ruleKey(args []string) string {
	// drop the leading "-C/-A/-D OUTPUT"
	return strings.Join(args[2:], " ")
}

func (f *fakeCommander) Run(_ context.Context, name string, args ...string) (string, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	switch args[0] {
	case "-A":
		f.existing[ruleKey(args)]++
		return "", nil
	case "-Z":
		if f.failZero {
			return "iptables: Permission denied", fmt.Errorf("exit status 2")
		}
		return "", nil
	case "-L":
		if f.failList {
			return "", fmt.Errorf("exit status 2")
		}
		return f.listing, nil
	}
	return "", nil
}

func (f *fakeCommander) RunQuiet(_ context.Context, name string, args ...string) (string, bool) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	switch args[0] {
	case "-C":
		return "", f.existing[ruleKey(args)] > 0
	case "-D":
		key := ruleKey(args)
		if f.existing[key] > 0 {
			f.existing[key]--
			return "", true
		}
		return "iptables: Bad rule", false
	}
	return "", true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInstallInsertsBothDirections(t *testing.T) {
	fake := newFake()
	c := NewCounters(fake, discardLogger())

	require.NoError(t, c.Install(context.Background(), []int{8001}))

	assert.Equal(t, 1, fake.existing["-p tcp --dport 8001 -j ACCEPT"])
	assert.Equal(t, 1, fake.existing["-p tcp --sport 8001 -j ACCEPT"])
}

func TestInstallIsIdempotent(t *testing.T) {
	fake := newFake()
	c := NewCounters(fake, discardLogger())

	require.NoError(t, c.Install(context.Background(), []int{8001}))
	require.NoError(t, c.Install(context.Background(), []int{8001}))

	// The check-then-insert pattern must never stack duplicate rules.
	assert.Equal(t, 1, fake.existing["-p tcp --dport 8001 -j ACCEPT"])
	assert.Equal(t, 1, fake.existing["-p tcp --sport 8001 -j ACCEPT"])
}

func TestInstallZeroesChain(t *testing.T) {
	fake := newFake()
	c := NewCounters(fake, discardLogger())

	require.NoError(t, c.Install(context.Background(), []int{8001}))

	var sawZero bool
	for _, call := range fake.calls {
		if strings.Contains(call, "-Z OUTPUT") {
			sawZero = true
		}
	}
	assert.True(t, sawZero, "install must zero the chain after inserting rules")
}

func TestReadAfterInstallIsZero(t *testing.T) {
	fake := newFake()
	fake.listing = "Chain OUTPUT (policy ACCEPT 12 packets, 720 bytes)\n" +
		"    pkts      bytes target     prot opt in     out     source               destination\n" +
		"       0        0 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp dpt:8001\n" +
		"       0        0 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp spt:8001\n"
	c := NewCounters(fake, discardLogger())

	require.NoError(t, c.Install(context.Background(), []int{8001}))
	sent, recv, err := c.Read(context.Background(), []int{8001})
	require.NoError(t, err)

	// Freshly zeroed counters must not contain traffic from any earlier
	// run; a measured run always starts from zero.
	assert.Zero(t, sent)
	assert.Zero(t, recv)
}

func TestParseChainBytes(t *testing.T) {
	listing := "Chain OUTPUT (policy ACCEPT 99 packets, 9999 bytes)\n" +
		"    pkts      bytes target     prot opt in     out     source               destination\n" +
		"      10     1500 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp dpt:8001\n" +
		"       8      900 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp spt:8001\n" +
		"       5      250 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp dpt:9002\n"

	sent, recv := ParseChainBytes(listing, []int{8001})
	assert.Equal(t, int64(1500), sent)
	assert.Equal(t, int64(900), recv)

	sent, recv = ParseChainBytes(listing, []int{8001, 9002})
	assert.Equal(t, int64(1750), sent)
	assert.Equal(t, int64(900), recv)
}

func TestParseChainBytesSkipsMalformedLines(t *testing.T) {
	listing := "Chain OUTPUT (policy ACCEPT 0 packets, 0 bytes)\n" +
		"    pkts      bytes target     prot opt in     out     source               destination\n" +
		"garbage\n" +
		"      10  notanumber ACCEPT  tcp  --  *  *  0.0.0.0/0  0.0.0.0/0  tcp dpt:8001\n" +
		"      10     1200 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp dpt:8001\n" +
		"\n"

	sent, recv := ParseChainBytes(listing, []int{8001})
	assert.Equal(t, int64(1200), sent)
	assert.Zero(t, recv)
}

func TestParseChainBytesIgnoresPortPrefixCollisions(t *testing.T) {
	listing := "Chain OUTPUT (policy ACCEPT 0 packets, 0 bytes)\n" +
		"    pkts      bytes target     prot opt in     out     source               destination\n" +
		"      10     1500 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp dpt:8001\n" +
		"       8      900 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp spt:8001\n" +
		"       4      320 ACCEPT     tcp  --  *      *       0.0.0.0/0            0.0.0.0/0            tcp dpt:80\n"

	// Port 80 must not claim the dpt:8001 rule's counter just because the
	// rendered port shares a prefix.
	sent, recv := ParseChainBytes(listing, []int{80})
	assert.Equal(t, int64(320), sent)
	assert.Zero(t, recv)

	sent, recv = ParseChainBytes(listing, []int{8001})
	assert.Equal(t, int64(1500), sent)
	assert.Equal(t, int64(900), recv)
}

func TestParseChainBytesMissingRulesReadAsZero(t *testing.T) {
	listing := "Chain OUTPUT (policy ACCEPT 0 packets, 0 bytes)\n" +
		"    pkts      bytes target     prot opt in     out     source               destination\n"

	sent, recv := ParseChainBytes(listing, []int{8001})
	assert.Zero(t, sent)
	assert.Zero(t, recv)
}

func TestRemoveDeletesUntilAbsent(t *testing.T) {
	fake := newFake()
	// Duplicates accumulated across retries: three copies of the dport
	// rule, one of the sport rule.
	fake.existing["-p tcp --dport 8001 -j ACCEPT"] = 3
	fake.existing["-p tcp --sport 8001 -j ACCEPT"] = 1
	c := NewCounters(fake, discardLogger())

	c.Remove(context.Background(), []int{8001})

	assert.Zero(t, fake.existing["-p tcp --dport 8001 -j ACCEPT"])
	assert.Zero(t, fake.existing["-p tcp --sport 8001 -j ACCEPT"])
}

func TestRemoveOnEmptyIsNoOp(t *testing.T) {
	fake := newFake()
	c := NewCounters(fake, discardLogger())

	// Removing rules that were never installed must not blow up.
	c.Remove(context.Background(), []int{8001, 9002})
}

func TestInstallZeroFailure(t *testing.T) {
	fake := newFake()
	fake.failZero = true
	c := NewCounters(fake, discardLogger())

	err := c.Install(context.Background(), []int{8001})
	require.Error(t, err)

	var instrErr *InstrumentationError
	require.ErrorAs(t, err, &instrErr)
	assert.Equal(t, "zero", instrErr.Op)
}

func TestReadFailureIsInstrumentationError(t *testing.T) {
	fake := newFake()
	fake.failList = true
	c := NewCounters(fake, discardLogger())

	_, _, err := c.Read(context.Background(), []int{8001})
	require.Error(t, err)

	var instrErr *InstrumentationError
	require.ErrorAs(t, err, &instrErr)
	assert.Equal(t, "read", instrErr.Op)
}
