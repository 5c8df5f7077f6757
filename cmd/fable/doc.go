// Command fable labels face accessories in an image dataset with a local
// vision model.
//
// `fable run <data_dir>` discovers images, tracks each one in a SQLite
// progress database next to the output CSV and labels them in bounded
// batches. Interrupted runs resume where they stopped. The remaining
// commands inspect and repair that progress database and summarize the CSV.
package main
