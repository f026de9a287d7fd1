// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// ethosu_compile partitions, lowers and compiles exported programs (YAML + npz state dict) for the
// Ethos-U NPU, and inspects the resulting artifacts.
//
// Usage:
//
//	ethosu_compile partition model.yaml
//	ethosu_compile lower --dump /tmp/tosa model.yaml
//	ethosu_compile compile -o out/ --spec accelerator_config=ethos-u55-256 model.yaml
//	ethosu_compile inspect out/tag0.bin
package main

import (
	"os"

	"k8s.io/klog/v2"
)

func main() {
	defer klog.Flush()
	if err := newRootCommand().Execute(); err != nil {
		klog.Errorf("%+v", err)
		os.Exit(1)
	}
}
