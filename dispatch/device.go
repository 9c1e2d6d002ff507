// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package dispatch

// AssignDevice returns the GPU device index a task should bind to within
// job, consuming task.TaskNeedResources worth of slot capacity from the
// job's Resources. The second return value is false when the job's
// Resources don't opt into GPU-affinity assignment (if_cuda_multi_devices),
// in which case the index is meaningless.
//
// Submission.Run never calls this itself: script rendering (setting
// CUDA_VISIBLE_DEVICES or equivalent in the per-task wrapper script) is a
// concrete Batch backend's job, not the driver loop's. A Batch
// implementation that renders multi-GPU scripts calls AssignDevice once per
// task, in task order, while building a job's script.
func AssignDevice(job *Job, task *Task) (deviceIndex int, ok bool) {
	if !job.Resources.IfCUDAMultiDevices {
		return 0, false
	}
	return job.Resources.ReserveSlot(task.TaskNeedResources), true
}
