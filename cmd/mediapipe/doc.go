// Command mediapipe is the command-line front end for the media pipeline.
//
// It runs the daemon (`mediapipe daemon`) and acts as an intake and status
// client against the same SQLite stores: add uploads a file, status and show
// report processing state, and queue inspects the durable job queue.
package main
