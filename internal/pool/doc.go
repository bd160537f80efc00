// Package pool provides the NUMA-aware packet buffer pool (Alloc/Free)
// so every Packet handle on the data path is backed by pooled,
// NUMA-tagged memory instead of per-packet allocation.
//
// Author: momentics <momentics@gmail.com>
package pool
