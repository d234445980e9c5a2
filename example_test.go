package co_test

import (
	"fmt"
	"time"

	"github.com/mrpi/co"
)

func Example() {
	loop := co.NewLoop()
	pool := co.StartWorkers(loop, 2)

	r := co.NewOn(loop, func() error {
		if err := co.Sleep(time.Millisecond); err != nil {
			return err
		}
		fmt.Println("resumed on a worker")
		return nil
	})
	if err := r.Join(); err != nil {
		fmt.Println("error:", err)
	}
	if err := pool.Join(); err != nil {
		fmt.Println("error:", err)
	}

	// Output:
	// resumed on a worker
}

func ExampleAwait() {
	loop := co.NewLoop()
	pool := co.StartWorkers(loop, 1)

	p := co.NewPromise[int]()
	go func() {
		time.Sleep(time.Millisecond)
		p.SetValue(42)
	}()

	r := co.NewOn(loop, func() error {
		v, err := co.Await(p.Future())
		if err != nil {
			return err
		}
		fmt.Println("got", v)
		return nil
	})
	_ = r.Join()
	_ = pool.Join()

	// Output:
	// got 42
}

func ExampleGenerate() {
	loop := co.NewLoop()
	pool := co.StartWorkers(loop, 2)

	squares := co.Generate(loop, func(s *co.Sender[int]) error {
		for i := 1; i <= 4; i++ {
			if !s.Send(i * i) {
				return nil
			}
		}
		return nil
	})

	r := co.NewOn(loop, func() error {
		for v := range squares.All() {
			fmt.Println(v)
		}
		return nil
	})
	_ = r.Join()
	_ = pool.Join()

	// Output:
	// 1
	// 4
	// 9
	// 16
}

func ExampleForEach() {
	loop := co.NewLoop()
	pool := co.StartWorkers(loop, 4)

	items := []string{"a", "b", "c", "d"}
	results := make([]string, len(items))
	err := co.ForEach(loop, 2, []int{0, 1, 2, 3}, func(i int) error {
		results[i] = items[i] + "!"
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
	}
	_ = pool.Join()
	fmt.Println(results)

	// Output:
	// [a! b! c! d!]
}
