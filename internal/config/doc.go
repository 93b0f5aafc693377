// Package config loads the two kinds of configuration the demo needs.
//
// Experiment configuration is a YAML file under the config directory
// (config/<name>.yaml). It names the trained model, the backbone and the
// per-dataset detection thresholds:
//
//	wandb_opt: false
//	train:
//	  backbone: vgg
//	test:
//	  trained_model: weights/craft.onnx
//	  custom_data:
//	    text_threshold: 0.75
//	    link_threshold: 0.2
//	    low_text: 0.5
//	    cuda: false
//	    poly: false
//	    canvas_size: 2240
//	    mag_ratio: 1.75
//	    vis_opt: true
//	    test_data_dir: data/custom_data
//
// Runtime settings (database, redis, S3, listen address, pool sizes) come
// from the environment. A .env file in the working directory is loaded first
// when present, so credentials never need to live in source.
package config
