package orderbook

import "container/heap"

// maxPriceHeap orders buy-limit price levels, highest price on top.
// Manipulate it through container/heap.
type maxPriceHeap []int64

func (h maxPriceHeap) Len() int           { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool { return h[i] > h[j] }
func (h maxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxPriceHeap) Push(x any) {
	*h = append(*h, x.(int64))
}

func (h *maxPriceHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (h maxPriceHeap) peek() (int64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// minPriceHeap orders sell-limit price levels, lowest price on top.
type minPriceHeap []int64

func (h minPriceHeap) Len() int           { return len(h) }
func (h minPriceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minPriceHeap) Push(x any) {
	*h = append(*h, x.(int64))
}

func (h *minPriceHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

func (h minPriceHeap) peek() (int64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}

// removePrice drops one price level from h. O(n), only hit when a level empties.
func removePrice(h heap.Interface, prices []int64, price int64) {
	for i, p := range prices {
		if p == price {
			heap.Remove(h, i)
			return
		}
	}
}
