// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import "github.com/ngs-toolkit/chipseq"

func main() {
	chipseq.Main()
}
