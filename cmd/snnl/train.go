package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/hsandmeyer/snnl-sub000/autodiff"
	"github.com/hsandmeyer/snnl-sub000/nn"
	"github.com/hsandmeyer/snnl-sub000/optim"
	"github.com/hsandmeyer/snnl-sub000/tensor"
)

// optimizer is what training needs: stepping, and saving its state with a checkpoint.
type optimizer[T tensor.Float] interface {
	optim.Optimizer[T]
	nn.OptimizerState[T]
}

func newOptimizer[T tensor.Float]() (optimizer[T], error) {
	switch *flagOptimizer {
	case "adam":
		return optim.NewAdam[T](optim.AdamConfig{LR: *flagLR}), nil
	case "sgd":
		return optim.NewSGD[T](optim.SGDConfig{LR: *flagLR, Momentum: *flagMomentum}), nil
	}
	return nil, errors.Errorf("unknown optimizer %q", *flagOptimizer)
}

func seed() {
	s := *flagSeed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	tensor.Seed(s)
	klog.V(1).Infof("seed %d", s)
}

// trainer runs the training loop shared by the commands.
type trainer[T tensor.Float] struct {
	name  string
	model nn.Module[T]
	opt   optimizer[T]
	step  int64
}

// resume loads the -init_safetensors weights and the -resume checkpoint, if any.
func (tr *trainer[T]) resume() error {
	fmt.Printf("%s: %s parameters\n", tr.name, humanize.Comma(int64(nn.NumParameters[T](tr.model))))
	if *flagImport != "" {
		if err := nn.ImportSafeTensors(tr.model, *flagImport); err != nil {
			return err
		}
	}
	if *flagResume == "" {
		return nil
	}
	checkpoint, err := nn.LoadCheckpoint[T](*flagResume, tr.model, tr.opt)
	if err != nil {
		return err
	}
	tr.step = checkpoint.Step
	fmt.Printf("resumed from %s at step %s (loss %.4g)\n", *flagResume, humanize.Comma(tr.step), checkpoint.Loss)
	return nil
}

// run calls trainStep -steps times, showing progress. trainStep returns the step's loss.
func (tr *trainer[T]) run(trainStep func() (T, error)) (T, error) {
	bar := progressbar.NewOptions(*flagSteps,
		progressbar.OptionSetDescription(tr.name),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
	)
	var loss T
	for i := 0; i < *flagSteps; i++ {
		var err error
		loss, err = trainStep()
		if err != nil {
			return loss, errors.WithMessagef(err, "step %d", tr.step)
		}
		tr.step++
		if *flagReport > 0 && i%*flagReport == 0 {
			bar.Describe(fmt.Sprintf("%s [loss=%.4g]", tr.name, loss))
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	fmt.Println()
	return loss, nil
}

// save writes the -save checkpoint and the -safetensors export, if asked for.
func (tr *trainer[T]) save(loss T) error {
	if *flagSave != "" {
		checkpoint := &nn.Checkpoint[T]{
			Model:     tr.model,
			Optimizer: tr.opt,
			Step:      tr.step,
			Loss:      float64(loss),
			Metadata:  map[string]string{"command": tr.name},
		}
		if err := checkpoint.Save(*flagSave); err != nil {
			return err
		}
		reportFile(withExtension(*flagSave))
	}
	if *flagExport != "" {
		if err := nn.ExportSafeTensors(tr.model, *flagExport, map[string]string{"command": tr.name}); err != nil {
			return err
		}
		reportFile(*flagExport)
	}
	return nil
}

func withExtension(path string) string {
	if strings.HasSuffix(path, nn.FileExtension) {
		return path
	}
	return path + nn.FileExtension
}

func reportFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		klog.Warningf("saved %s but cannot stat it: %v", path, err)
		return
	}
	fmt.Printf("saved %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
}

// lossOf returns the scalar value of a loss node.
func lossOf[T tensor.Float](loss *autodiff.Node[T]) T {
	return loss.Value(0)
}
