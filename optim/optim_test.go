// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsandmeyer/snnl-sub000/autodiff"
	"github.com/hsandmeyer/snnl-sub000/optim"
)

func TestFacade_SGDStep(t *testing.T) {
	w := autodiff.NewWeight[float64](2)
	w.SetAllValues(1)
	loss, err := autodiff.Sum(w)
	require.NoError(t, err)

	var opt optim.Optimizer[float64] = optim.NewSGD[float64](optim.SGDConfig{LR: 0.5})
	require.NoError(t, optim.Minimize(opt, loss))
	assert.Equal(t, []float64{0.5, 0.5}, w.Values().Values())
	assert.Equal(t, 0.5, opt.LR())
}
