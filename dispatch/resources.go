// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"encoding/json"

	derrors "github.com/Cloudac7/dpdispatcher/pkg/errors"
)

// Resources describes the machine demand for a Job: how many nodes, how
// many CPUs/GPUs per node, which queue, how many tasks to pack per job, and
// whether GPU-affinity assignment is in play.
//
// The Slurm-flavored variant is modeled as a tagged variant rather than a
// subclass: a Resources value whose SbatchDict is non-empty is the
// Slurm-flavored variant; IsSlurm reports which one a value is.
type Resources struct {
	NumberNode         int               `json:"number_node"`
	CPUPerNode         int               `json:"cpu_per_node"`
	GPUPerNode         int               `json:"gpu_per_node"`
	QueueName          string            `json:"queue_name"`
	GroupSize          int               `json:"group_size"`
	IfCUDAMultiDevices bool              `json:"if_cuda_multi_devices"`
	SbatchDict         map[string]string `json:"slurm_sbatch_dict,omitempty"`

	inUse float64
}

// NewResources constructs a Resources value and validates the GPU-affinity
// invariant: if IfCUDAMultiDevices is set, gpuPerNode must be >= 1 and
// numberNode must equal 1.
func NewResources(numberNode, cpuPerNode, gpuPerNode int, queueName string, groupSize int, ifCUDAMultiDevices bool) (*Resources, error) {
	r := &Resources{
		NumberNode:         numberNode,
		CPUPerNode:         cpuPerNode,
		GPUPerNode:         gpuPerNode,
		QueueName:          queueName,
		GroupSize:          groupSize,
		IfCUDAMultiDevices: ifCUDAMultiDevices,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewSlurmResources wraps base in the Slurm-flavored variant, attaching an
// opaque mapping of sbatch directives.
func NewSlurmResources(base Resources, sbatchDict map[string]string) *Resources {
	base.SbatchDict = sbatchDict
	return &base
}

// IsSlurm reports whether r carries Slurm sbatch directives.
func (r *Resources) IsSlurm() bool {
	return len(r.SbatchDict) > 0
}

// Validate checks the GPU-affinity invariant.
func (r *Resources) Validate() error {
	if r.IfCUDAMultiDevices {
		if r.GPUPerNode < 1 {
			return derrors.New(derrors.ErrorCodeInvalidConfiguration,
				"gpu_per_node must be at least 1 when if_cuda_multi_devices is true")
		}
		if r.NumberNode != 1 {
			return derrors.New(derrors.ErrorCodeInvalidConfiguration,
				"number_node must be 1 when if_cuda_multi_devices is true")
		}
	}
	if r.GroupSize < 1 {
		return derrors.New(derrors.ErrorCodeInvalidConfiguration, "group_size must be a positive integer")
	}
	return nil
}

// Clone returns a deep copy, used when a Submission hands each Job its own
// independent copy of its Resources.
func (r *Resources) Clone() *Resources {
	clone := *r
	clone.inUse = 0
	if r.SbatchDict != nil {
		clone.SbatchDict = make(map[string]string, len(r.SbatchDict))
		for k, v := range r.SbatchDict {
			clone.SbatchDict[k] = v
		}
	}
	return &clone
}

// Equal reports structural equality by serialized form.
func (r *Resources) Equal(other *Resources) bool {
	a, errA := json.Marshal(r)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// SlotsInUse reports the accumulated GPU-affinity slot usage (the
// original's `in_use` counter on Resources).
func (r *Resources) SlotsInUse() float64 {
	return r.inUse
}

// ReserveSlot records that a task consuming need (a fraction of one GPU
// slot, a task's task_need_resources) has been placed, returning the GPU
// device index it was assigned. Only meaningful when IfCUDAMultiDevices is
// set; callers check that separately via AssignDevice.
func (r *Resources) ReserveSlot(need float64) int {
	gpuPerNode := r.GPUPerNode
	if gpuPerNode < 1 {
		gpuPerNode = 1
	}
	index := int(r.inUse) % gpuPerNode
	r.inUse += need
	return index
}
