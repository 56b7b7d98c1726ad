package parser

import (
	"sync"

	"github.com/Velocidex/ordereddict"
)

var (
	STATS = Stats{}
)

// Process wide counters, reported by the tool's --stats flag. These
// are diagnostics only and never influence decoding.
type Stats struct {
	mu sync.Mutex

	RecordsRead       int
	RecordsCorrupt    int
	RecordsSkipped    int
	FixupErrors       int
	AttributesWalked  int
	AttributesDecoded int
	RunsResolved      int
	SparseRuns        int
	PhysicalReads     int
	IndexBlocks       int
}

func (self *Stats) Dict() *ordereddict.Dict {
	self.mu.Lock()
	defer self.mu.Unlock()

	return ordereddict.NewDict().
		Set("RecordsRead", self.RecordsRead).
		Set("RecordsCorrupt", self.RecordsCorrupt).
		Set("RecordsSkipped", self.RecordsSkipped).
		Set("FixupErrors", self.FixupErrors).
		Set("AttributesWalked", self.AttributesWalked).
		Set("AttributesDecoded", self.AttributesDecoded).
		Set("RunsResolved", self.RunsResolved).
		Set("SparseRuns", self.SparseRuns).
		Set("PhysicalReads", self.PhysicalReads).
		Set("IndexBlocks", self.IndexBlocks)
}

func (self *Stats) inc(field *int) {
	self.mu.Lock()
	defer self.mu.Unlock()

	*field++
}

func (self *Stats) Inc_RecordsRead()       { self.inc(&self.RecordsRead) }
func (self *Stats) Inc_RecordsCorrupt()    { self.inc(&self.RecordsCorrupt) }
func (self *Stats) Inc_RecordsSkipped()    { self.inc(&self.RecordsSkipped) }
func (self *Stats) Inc_FixupErrors()       { self.inc(&self.FixupErrors) }
func (self *Stats) Inc_AttributesWalked()  { self.inc(&self.AttributesWalked) }
func (self *Stats) Inc_AttributesDecoded() { self.inc(&self.AttributesDecoded) }
func (self *Stats) Inc_RunsResolved()      { self.inc(&self.RunsResolved) }
func (self *Stats) Inc_SparseRuns()        { self.inc(&self.SparseRuns) }
func (self *Stats) Inc_PhysicalReads()     { self.inc(&self.PhysicalReads) }
func (self *Stats) Inc_IndexBlocks()       { self.inc(&self.IndexBlocks) }
