// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// snnl trains the small demonstration networks of the engine and inspects the files they save.
//
// Usage:
//
//	snnl [flags] <command> [args]
//
// Commands:
//
//	sin          fit sin(x) on [-π, π] with a dense network
//	sinrnn       predict the next value of a randomly sampled sine with a recurrent network
//	mnist        train a convolutional digit classifier on the MNIST IDX files in -mnist_dir
//	inspect FILE list the tensors and training state stored in a .snnl file
//	version      print the version
package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/internal/serialization"
)

var (
	flagSteps     = flag.Int("steps", 10000, "Number of training steps.")
	flagBatch     = flag.Int("batch", 32, "Batch size.")
	flagOptimizer = flag.String("optimizer", "adam", "Optimizer to train with: \"adam\" or \"sgd\".")
	flagLR        = flag.Float64("lr", 0, "Learning rate. 0 takes the optimizer's default.")
	flagMomentum  = flag.Float64("momentum", 0, "Momentum of the \"sgd\" optimizer.")
	flagSeed      = flag.Int64("seed", 0, "Seed of the weight initialization and sampling. 0 seeds from the clock.")
	flagSave      = flag.String("save", "", "Save a checkpoint of model and optimizer to this path when training ends.")
	flagResume    = flag.String("resume", "", "Resume training from this checkpoint.")
	flagExport    = flag.String("safetensors", "", "Also export the trained weights in SafeTensors format to this path.")
	flagImport    = flag.String("init_safetensors", "", "Initialize the weights from this SafeTensors file.")
	flagReport    = flag.Int("report", 500, "Update the loss shown on the progress bar every this many steps.")
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <sin|sinrnn|mnist|inspect FILE|version>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	var err error
	switch args[0] {
	case "sin":
		err = trainSin()
	case "sinrnn":
		err = trainSinRNN()
	case "mnist":
		err = trainMNIST()
	case "inspect":
		if len(args) != 2 {
			klog.Errorf("inspect takes exactly one file. See 'snnl -help'.")
			os.Exit(1)
		}
		err = inspect(args[1])
	case "version":
		fmt.Printf("snnl %s\n", serialization.LibraryVersion)
	default:
		klog.Errorf("Unknown command %q. See 'snnl -help'.", args[0])
		os.Exit(1)
	}
	if err != nil {
		klog.Errorf("%s failed: %+v", args[0], err)
		os.Exit(1)
	}
}
