package mpicomm

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type route struct {
	src, dst, tag int
}

// switchboard carries messages between in-process ranks.
type switchboard struct {
	lock   sync.Mutex
	size   int
	routes map[route]chan []byte
	sent   map[route]int
}

func newSwitchboard(size int) *switchboard {
	return &switchboard{size: size, routes: map[route]chan []byte{}, sent: map[route]int{}}
}

func (s *switchboard) channel(r route) chan []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	ch, ok := s.routes[r]
	if !ok {
		ch = make(chan []byte, 16)
		s.routes[r] = ch
	}
	return ch
}

func (s *switchboard) transport(rank int) *localTransport {
	return &localTransport{board: s, rank: rank}
}

type localTransport struct {
	board *switchboard
	rank  int

	// sendCount overrides the length of every message
	// this rank sends when it is positive.
	sendCount int
	sendErr   error
}

func (l *localTransport) Rank() int { return l.rank }
func (l *localTransport) Size() int { return l.board.size }

func (l *localTransport) Send(data []byte, dest, tag int) error {
	if l.sendErr != nil {
		return l.sendErr
	}
	msg := append([]byte{}, data...)
	if l.sendCount > 0 {
		msg = make([]byte, l.sendCount)
	}
	r := route{src: l.rank, dst: dest, tag: tag}
	l.board.lock.Lock()
	l.board.sent[r]++
	l.board.lock.Unlock()
	l.board.channel(r) <- msg
	return nil
}

func (l *localTransport) Receive(data *[]byte, src, tag int) error {
	msg := <-l.board.channel(route{src: src, dst: l.rank, tag: tag})
	*data = append((*data)[:0], msg...)
	return nil
}

// runGroups runs f for every rank of a group of the given
// size and returns the per-rank errors.
func runGroups(transports []*localTransport, f func(g *Group) error) []error {
	errs := make([]error, len(transports))
	var wg sync.WaitGroup
	for i, t := range transports {
		wg.Add(1)
		go func(i int, t *localTransport) {
			defer wg.Done()
			errs[i] = f(NewGroup(t))
		}(i, t)
	}
	wg.Wait()
	return errs
}

func localGroup(size int) []*localTransport {
	board := newSwitchboard(size)
	res := make([]*localTransport, size)
	for i := range res {
		res[i] = board.transport(i)
	}
	return res
}

func TestAlltoall(t *testing.T) {
	for _, size := range []int{1, 2, 3, 5} {
		for _, count := range []int{0, 1, 1000} {
			t.Run(fmt.Sprintf("Size=%d,Count=%d", size, count), func(t *testing.T) {
				sends := make([][]byte, size)
				recvs := make([][]byte, size)
				for i := range sends {
					sends[i] = make([]byte, size*count)
					rand.Read(sends[i])
					recvs[i] = make([]byte, size*count)
				}
				errs := runGroups(localGroup(size), func(g *Group) error {
					for round := 0; round < 3; round++ {
						if err := g.Alltoall(sends[g.Rank()], recvs[g.Rank()], count); err != nil {
							return err
						}
					}
					return nil
				})
				for rank, err := range errs {
					require.NoError(t, err, "rank %d", rank)
				}
				for dst := range recvs {
					for src := range sends {
						expected := sends[src][dst*count : (dst+1)*count]
						actual := recvs[dst][src*count : (src+1)*count]
						assert.True(t, bytes.Equal(expected, actual), "rank %d from rank %d", dst, src)
					}
				}
			})
		}
	}
}

func TestAlltoallPairsEachStep(t *testing.T) {
	transports := localGroup(4)
	errs := runGroups(transports, func(g *Group) error {
		buf := make([]byte, 4*8)
		if err := g.Alltoall(buf, make([]byte, len(buf)), 8); err != nil {
			return err
		}
		return g.Alltoall(buf, make([]byte, len(buf)), 8)
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	board := transports[0].board
	assert.Len(t, board.sent, 2*4*3)
	for r, n := range board.sent {
		assert.NotEqual(t, r.src, r.dst)
		assert.Contains(t, []int{1, 2}, r.tag)
		assert.Equal(t, 1, n, "route %+v", r)
	}
}

func TestAlltoallCountMismatch(t *testing.T) {
	transports := localGroup(2)
	transports[1].sendCount = 3
	errs := runGroups(transports, func(g *Group) error {
		return g.Alltoall(make([]byte, 10), make([]byte, 10), 5)
	})
	require.Error(t, errs[0])
	assert.Contains(t, errs[0].Error(), "rank 1 sent 3 bytes, expected 5")
	assert.NoError(t, errs[1])
}

func TestAlltoallSendFailure(t *testing.T) {
	transports := localGroup(2)
	failure := errors.New("connection reset")
	transports[0].sendErr = failure
	// Rank 1's half of the step has already arrived.
	transports[0].board.channel(route{src: 1, dst: 0, tag: 1}) <- []byte{9}
	g := NewGroup(transports[0])
	err := g.Alltoall(make([]byte, 2), make([]byte, 2), 1)
	require.Error(t, err)
	assert.Equal(t, failure, errors.Cause(err))
}

func TestAlltoallBufferChecks(t *testing.T) {
	g := NewGroup(localGroup(3)[0])
	assert.Error(t, g.Alltoall(make([]byte, 5), make([]byte, 6), 2))
	assert.Error(t, g.Alltoall(make([]byte, 6), make([]byte, 5), 2))
	assert.Error(t, g.Alltoall(nil, nil, -1))
}

func TestJoinAlone(t *testing.T) {
	g, err := Join(Config{})
	require.NoError(t, err)
	assert.Equal(t, 1, g.Size())
	assert.Equal(t, 0, g.Rank())
	assert.NoError(t, g.Alltoall([]byte{7}, make([]byte, 1), 1))
	g.Close()
	g.Close()
}

func TestJoinInvalid(t *testing.T) {
	_, err := Join(Config{Addr: "127.0.0.1:9", AllAddrs: []string{"127.0.0.1:1", "127.0.0.1:2"}})
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	cfg := Config{
		Addr:     "127.0.0.1:5001",
		AllAddrs: []string{"127.0.0.1:5000", "127.0.0.1:5001", "127.0.0.1:5002"},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Size())
	assert.Equal(t, 1, cfg.Rank())
	assert.Equal(t, []string{
		"--mpi-addr=127.0.0.1:5001",
		"--mpi-alladdr=127.0.0.1:5000,127.0.0.1:5001,127.0.0.1:5002",
	}, cfg.Args())

	assert.Equal(t, 1, Config{}.Size())
	assert.Equal(t, 0, Config{}.Rank())

	dup := Config{Addr: "a:1", AllAddrs: []string{"a:1", "a:1"}}
	assert.Error(t, dup.Validate())
	bad := Config{Addr: "a:1", AllAddrs: []string{"a:1", "nope"}}
	assert.Error(t, bad.Validate())
	missing := Config{Addr: "a:3", AllAddrs: []string{"a:1", "a:2"}}
	assert.Equal(t, -1, missing.Rank())
	assert.Error(t, missing.Validate())
}

func TestSplitAddrs(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2"}, SplitAddrs(" a:1, b:2 ,"))
	assert.Nil(t, SplitAddrs(""))
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv(EnvAddr, "127.0.0.1:1")
	t.Setenv(EnvAllAddr, "127.0.0.1:1,127.0.0.1:2")
	t.Setenv(EnvJobID, "job")

	cfg, err := LoadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Rank())
	assert.Equal(t, "job", cfg.JobID)

	cfg, err = LoadConfig("127.0.0.1:2", "")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Rank())
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv(EnvAddr, "")
	t.Setenv(EnvAllAddr, "")
	os.Unsetenv(EnvAddr)
	os.Unsetenv(EnvAllAddr)

	path := filepath.Join(t.TempDir(), "group.env")
	require.NoError(t, os.WriteFile(path, []byte(
		EnvAddr+"=127.0.0.1:7001\n"+EnvAllAddr+"=127.0.0.1:7000,127.0.0.1:7001\n"), 0o644))

	cfg, err := LoadConfig("", "", path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Size())
	assert.Equal(t, 1, cfg.Rank())

	_, err = LoadConfig("", "", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadConfigAlone(t *testing.T) {
	t.Setenv(EnvAddr, "")
	t.Setenv(EnvAllAddr, "")
	cfg, err := LoadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Size())
}
