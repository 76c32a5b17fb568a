package stats

import (
	"fmt"
	"time"

	"github.com/streetferret/crudo/log"
)

type counter struct {
	nodes         int64
	ways          int64
	relations     int64
	features      int64
	lastReport    time.Time
	lastNodes     int64
	lastWays      int64
	lastRelations int64
}

// Counts is a snapshot of the progress counters.
type Counts struct {
	Nodes     int64
	Ways      int64
	Relations int64
	Features  int64
}

// Statistics collects progress of a run and logs it periodically.
type Statistics struct {
	nodes     chan int
	ways      chan int
	relations chan int
	features  chan int
	query     chan chan Counts
	stop      chan chan Counts
}

func (s *Statistics) AddNodes(n int)     { s.nodes <- n }
func (s *Statistics) AddWays(n int)      { s.ways <- n }
func (s *Statistics) AddRelations(n int) { s.relations <- n }
func (s *Statistics) AddFeatures(n int)  { s.features <- n }

// Counts returns the current counters.
func (s *Statistics) Counts() Counts {
	c := make(chan Counts)
	s.query <- c
	return <-c
}

// Stop ends the reporter, logs the final numbers and returns them.
func (s *Statistics) Stop() Counts {
	c := make(chan Counts)
	s.stop <- c
	return <-c
}

// StatsReporter starts a reporter that logs progress every interval.
func StatsReporter(interval time.Duration) *Statistics {
	c := counter{lastReport: time.Now()}
	s := Statistics{
		nodes:     make(chan int),
		ways:      make(chan int),
		relations: make(chan int),
		features:  make(chan int),
		query:     make(chan chan Counts),
		stop:      make(chan chan Counts),
	}

	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case n := <-s.nodes:
				c.nodes += int64(n)
			case n := <-s.ways:
				c.ways += int64(n)
			case n := <-s.relations:
				c.relations += int64(n)
			case n := <-s.features:
				c.features += int64(n)
			case q := <-s.query:
				q <- c.counts()
			case q := <-s.stop:
				c.Print()
				q <- c.counts()
				return
			case <-tick.C:
				c.Print()
			}
		}
	}()
	return &s
}

func (c *counter) counts() Counts {
	return Counts{Nodes: c.nodes, Ways: c.ways, Relations: c.relations, Features: c.features}
}

func (c *counter) String() string {
	dur := time.Since(c.lastReport)
	nodesPS := int32(float64(c.nodes-c.lastNodes)/dur.Seconds()/100) * 100
	waysPS := int32(float64(c.ways-c.lastWays)/dur.Seconds()/100) * 100
	relationsPS := int32(float64(c.relations-c.lastRelations)/dur.Seconds()/10) * 10

	return fmt.Sprintf("Nodes: %7d/s (%9d) Ways: %7d/s (%8d) Relations: %6d/s (%7d) Features: %9d",
		nodesPS,
		c.nodes,
		waysPS,
		c.ways,
		relationsPS,
		c.relations,
		c.features,
	)
}

func (c *counter) Print() {
	log.Printf("[progress] %s", c)
	c.lastNodes = c.nodes
	c.lastWays = c.ways
	c.lastRelations = c.relations
	c.lastReport = time.Now()
}
