package orders

import (
	"crypto/md5"
	"fmt"
	"math/big"
)

// QueuePrefix names the partition queues: main_0 .. main_{N-1}.
const QueuePrefix = "main_"

// Partition maps key to [0, n). The digest is read as one big-endian integer
// and reduced modulo n, so every producer sharing the cluster (in any
// language) computes md5(key) mod n the same way. Changing n remaps keys.
func Partition(key string, n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("orders: partition count must be positive, got %d", n))
	}
	sum := md5.Sum([]byte(key))
	v := new(big.Int).SetBytes(sum[:])
	return int(v.Mod(v, big.NewInt(int64(n))).Int64())
}

func QueueName(partition int) string {
	return fmt.Sprintf("%s%d", QueuePrefix, partition)
}

// QueueFor is the queue serving key. Checkout keys by user id; add-item
// must resolve the order's user first so both land on the same queue.
func QueueFor(key string, n int) string {
	return QueueName(Partition(key, n))
}

// QueueNames lists every partition queue for n partitions.
func QueueNames(n int) []string {
	out := make([]string, 0, n)
	for i := range n {
		out = append(out, QueueName(i))
	}
	return out
}
