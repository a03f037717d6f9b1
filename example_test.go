package usearch_test

import (
	"fmt"
	"log"

	"github.com/EvandroLG/usearch"
	"github.com/EvandroLG/usearch/distance"
)

func Example() {
	index, err := usearch.New(3,
		usearch.WithMetric(distance.KindL2Sq),
		usearch.WithCapacity(10),
	)
	if err != nil {
		log.Fatal(err)
	}

	vectors := map[int64][]float32{
		1: {0.2, 0.6, 0.4},
		2: {0.9, 0.1, 0.1},
		3: {0.2, 0.6, 0.5},
	}
	for label, vec := range vectors {
		if _, err := index.Add(label, vec); err != nil {
			log.Fatal(err)
		}
	}

	matches, err := index.Search([]float32{0.2, 0.6, 0.4}, 2)
	if err != nil {
		log.Fatal(err)
	}
	for _, m := range matches {
		fmt.Printf("label=%d distance=%.2f\n", m.Label, m.Distance)
	}
	// Output:
	// label=1 distance=0.00
	// label=3 distance=0.01
}
