// An implementation of the "Santa Claus problem" as defined in 'Beautiful
// concurrency', found here: http://research.microsoft.com/en-us/um/people/simonpj/papers/stm/beautiful.pdf
//
// The problem is given as:
//
//   Santa repeatedly sleeps until wakened by either all of his nine reindeer,
//   back from their holidays, or by a group of three of his ten elves. If
//   awakened by the reindeer, he harnesses each of them to his sleigh,
//   delivers toys with them and finally unharnesses them (allowing them to
//   go off on holiday). If awakened by a group of elves, he shows each of the
//   group into his study, consults with them on toy R&D and finally shows
//   them each out (allowing them to go back to work). Santa should give
//   priority to the reindeer in the case that there is both a group of elves
//   and a group of reindeer waiting.
//
// Here we follow the solution given in the paper, described as such:
//
//   Santa makes one "Group" for the elves and one for the reindeer. Each elf
//   (or reindeer) tries to join its Group. If it succeeds, it gets two
//   "Gates" in return. The first Gate allows Santa to control when the elf
//   can enter the study, and also lets Santa know when they are all inside.
//   Similarly, the second Gate controls the elves leaving the study. Santa,
//   for his part, waits for either of his two Groups to be ready, and then
//   uses that Group's Gates to marshal his helpers (elves or reindeer)
//   through their task. Thus the helpers spend their lives in an infinite
//   loop: try to join a group, move through the gates under Santa's control,
//   and then delay for a random interval before trying to join a group again.
//
// Reindeer take priority over elves by trying the reindeer group's OrTry
// branch first; OrTry only falls through to the elf branch on Retry, which
// gives reindeer first refusal on every gate.
package stm_test

import (
	"fmt"
	"math/rand"
	"time"

	stm "github.com/orizon-lang/gostm"
)

type gate struct {
	capacity  int
	remaining *stm.Ref[int]
}

func (g *gate) pass() {
	stm.Atomically(stm.FlatMap(stm.ReadRef(g.remaining), func(v any) *stm.Term {
		rem := v.(int)
		if rem <= 0 {
			return stm.RetryTerm()
		}
		return stm.WriteRef(g.remaining, rem-1)
	}))
}

func (g *gate) operate() {
	// Open the gate, resetting capacity, then wait for it to fill back up.
	stm.AtomicSet(g.remaining, g.capacity)
	stm.Atomically(stm.FlatMap(stm.ReadRef(g.remaining), func(v any) *stm.Term {
		if v.(int) != 0 {
			return stm.RetryTerm()
		}
		return stm.Succeed(nil)
	}))
}

func newGate(capacity int) *gate {
	return &gate{capacity: capacity, remaining: stm.NewRef(0)} // starts closed
}

type group struct {
	capacity  int
	remaining *stm.Ref[int]
	gate1     *stm.Ref[*gate]
	gate2     *stm.Ref[*gate]
}

func newGroup(capacity int) *group {
	return &group{
		capacity:  capacity,
		remaining: stm.NewRef(capacity), // group starts at full capacity
		gate1:     stm.NewRef(newGate(capacity)),
		gate2:     stm.NewRef(newGate(capacity)),
	}
}

func (g *group) join() (g1, g2 *gate) {
	stm.Atomically(stm.FlatMap(stm.ReadRef(g.remaining), func(v any) *stm.Term {
		rem := v.(int)
		if rem <= 0 {
			return stm.RetryTerm()
		}
		return stm.FlatMap(stm.WriteRef(g.remaining, rem-1), func(any) *stm.Term {
			return stm.FlatMap(stm.ReadRef(g.gate1), func(a any) *stm.Term {
				return stm.Map(stm.ReadRef(g.gate2), func(b *gate) [2]*gate {
					g1, g2 = a.(*gate), b
					return [2]*gate{a.(*gate), b}
				})
			})
		})
	}))
	return
}

// await builds the term that, when the group is full, hands back its
// gates and resets the group for the next round. Used as one branch of
// Santa's priority OrTry.
func (g *group) await(s *selection, task string) *stm.Term {
	return stm.FlatMap(stm.ReadRef(g.remaining), func(v any) *stm.Term {
		if v.(int) != 0 {
			return stm.RetryTerm()
		}
		return stm.FlatMap(stm.ReadRef(g.gate1), func(a any) *stm.Term {
			return stm.FlatMap(stm.ReadRef(g.gate2), func(b any) *stm.Term {
				g1, g2 := a.(*gate), b.(*gate)
				return stm.FlatMap(stm.WriteRef(g.remaining, g.capacity), func(any) *stm.Term {
					return stm.FlatMap(stm.WriteRef(g.gate1, newGate(g.capacity)), func(any) *stm.Term {
						return stm.FlatMap(stm.WriteRef(g.gate2, newGate(g.capacity)), func(any) *stm.Term {
							s.gate1, s.gate2, s.task = g1, g2, task
							return stm.Succeed(nil)
						})
					})
				})
			})
		})
	})
}

func spawnElf(g *group, id int) {
	for {
		in, out := g.join()
		in.pass()
		fmt.Printf("Elf %v meeting in the study\n", id)
		out.pass()
		time.Sleep(time.Duration(rand.Intn(5000)) * time.Millisecond)
	}
}

func spawnReindeer(g *group, id int) {
	for {
		in, out := g.join()
		in.pass()
		fmt.Printf("Reindeer %v delivering toys\n", id)
		out.pass()
		time.Sleep(time.Duration(rand.Intn(5000)) * time.Millisecond)
	}
}

type selection struct {
	task  string
	gate1 *gate
	gate2 *gate
}

func spawnSanta(elves, reindeer *group) {
	for {
		fmt.Println("-------------")
		var s selection
		// Reindeer take priority: OrTry only tries the elf branch once the
		// reindeer branch retries.
		stm.Atomically(stm.OrTry(
			reindeer.await(&s, "deliver toys"),
			elves.await(&s, "meet in my study"),
		))
		fmt.Printf("Ho! Ho! Ho! Let's %s!\n", s.task)
		s.gate1.operate()
		// helpers do their work here...
		s.gate2.operate()
	}
}

func Example() {
	elfGroup := newGroup(3)
	for i := 0; i < 10; i++ {
		go spawnElf(elfGroup, i)
	}
	reinGroup := newGroup(9)
	for i := 0; i < 9; i++ {
		go spawnReindeer(reinGroup, i)
	}
	// blocks forever
	spawnSanta(elfGroup, reinGroup)
}
