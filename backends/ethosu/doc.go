// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ethosu implements the Ethos-U delegate: it selects the operations of an exported program the
// NPU supports, groups them into partitions, lowers each partition to a TOSA 0.80 module (package tosa),
// and packages the module compiled by Vela into the bin stream loaded by the runtime (package vela).
//
// The usual flow is:
//
//	backend := ethosu.New(specs)
//	compiled, err := backend.CompileProgram(ctx, program, ethosu.Options{})
//
// Lower and Backend.Preprocess can also be used directly on one partition extracted with
// program.Extract.
package ethosu
