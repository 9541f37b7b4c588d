// Command atfdemo is a minimal in-process smoke harness: it starts a
// handful of producer goroutines writing synthetic events against the
// atfcore library in the same process, lets the reporter print a few
// periodic reports to stderr, then shuts everything down cleanly. It
// does not attach to or spawn a separate target process.
package main

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/wezzard/atfcore/atf"
)

func main() {
	sessionDir := fmt.Sprintf("%s/atfdemo-session", os.TempDir())

	tr, err := atf.New(atf.Config{
		SessionDir:       sessionDir,
		MaxThreads:       8,
		RingsPerLane:     4,
		RingCapacity:     256,
		ReportIntervalMs: 500,
	})
	if err != nil {
		log.Fatalf("atfdemo: failed to create tracer: %v", err)
	}

	if err := tr.Start(); err != nil {
		log.Fatalf("atfdemo: failed to start tracer: %v", err)
	}

	fnID := tr.RegisterSymbol("/usr/lib/libdemo.so", "do_work")

	const producers = 4
	var wg sync.WaitGroup
	wg.Add(producers)
	for i := 0; i < producers; i++ {
		go func(threadID uint64) {
			defer wg.Done()
			h, ok := tr.Register(threadID)
			if !ok {
				log.Printf("atfdemo: thread %d failed to register", threadID)
				return
			}
			defer tr.Unregister(threadID)

			for j := 0; j < 5000; j++ {
				h.WriteEnter(time.Now().UnixNano(), fnID, uint16(j%16))
				h.WriteExit(time.Now().UnixNano(), fnID, uint16(j%16))
			}
		}(uint64(i + 1))
	}

	wg.Wait()
	time.Sleep(1200 * time.Millisecond)

	if err := tr.Stop(); err != nil {
		log.Fatalf("atfdemo: failed to stop tracer: %v", err)
	}

	fmt.Printf("atfdemo: session written to %s\n", sessionDir)
}
